// Package checker drives items through a graph of named states, each served
// by its own workers, and counts what every state did with them.
package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrNotInitialized = errors.New("not initialized")
	ErrStateNotFound  = errors.New("state not found")
	ErrAlreadyStarted = errors.New("already started")

	// ErrSourceDone returned by a DataSourceFunc that has nothing more to
	// produce.
	ErrSourceDone = errors.New("source exhausted")
)

const inChanSize = 64

type DataToBeVerified struct {
	CurrentState string
	NextState    string
	Data         any
}

func (d DataToBeVerified) String() string {
	return fmt.Sprintf("(%s) -> (%s) %v", d.CurrentState, d.NextState, d.Data)
}

type DoFunc func(context.Context, DataToBeVerified) (DataToBeVerified, error)
type CheckFunc func(before, after DataToBeVerified) error
type DataSourceFunc func(context.Context) (DataToBeVerified, error)

// Counters what one state did with the items it received.
type Counters struct {
	Done        uint64
	DoFailed    uint64
	CheckFailed uint64
}

type State struct {
	Id      string
	GoCount uint

	doFunc    DoFunc
	checkFunc CheckFunc
	inChan    chan DataToBeVerified

	done, doFailed, checkFailed atomic.Uint64

	sugar *zap.SugaredLogger
}

func NewState(id string, goCount uint, logger *zap.Logger) *State {
	return &State{
		Id:      id,
		GoCount: goCount,
		sugar:   logger.Sugar(),
		inChan:  make(chan DataToBeVerified, inChanSize),
	}
}

func (s *State) String() string {
	return fmt.Sprintf("%s goroutines=%d", s.Id, s.GoCount)
}

func (s *State) SetDoFunc(f DoFunc) {
	s.doFunc = f
}

func (s *State) SetCheckFunc(f CheckFunc) {
	s.checkFunc = f
}

func (s *State) Counters() Counters {
	return Counters{
		Done:        s.done.Load(),
		DoFailed:    s.doFailed.Load(),
		CheckFailed: s.checkFailed.Load(),
	}
}

func (s *State) job(ctx context.Context, sv *StateSupervisor) {
	defer sv.wg.Done()

	const msg = "job"
	s.sugar.Debugw(msg+" started", "state", s.Id)
	for {
		select {
		case <-ctx.Done():
			s.sugar.Debugw(msg+" ctx.Done() received", "state", s.Id)
			return
		case before := <-s.inChan:
			after, err := s.doFunc(ctx, before)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.doFailed.Add(1)
				s.sugar.Errorw(msg+" doFunc", "state", s.Id, "data", before.String(), "error", err)
				continue
			}
			if s.checkFunc != nil {
				if err := s.checkFunc(before, after); err != nil {
					s.checkFailed.Add(1)
					s.sugar.Errorw(msg+" checkFunc", "state", s.Id, "data", after.String(), "error", err)
					continue
				}
			}
			s.done.Add(1)

			if after.NextState == "" {
				continue
			}
			after.CurrentState = s.Id
			if err := sv.route(ctx, after); err != nil && ctx.Err() == nil {
				s.sugar.Errorw(msg+" route", "state", s.Id, "error", err)
			}
		}
	}
}

// push hands data to the state, blocking until a worker has room or ctx
// ends.
func (s *State) push(ctx context.Context, data DataToBeVerified) error {
	select {
	case s.inChan <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StateSupervisor owns the states and the source feeding them.
type StateSupervisor struct {
	mu      sync.RWMutex
	states  map[string]*State
	started bool

	sourceFunc DataSourceFunc
	wg         sync.WaitGroup

	sugar *zap.SugaredLogger
}

func NewStateSupervisor(logger *zap.Logger) (*StateSupervisor, error) {
	if logger == nil {
		return nil, errors.New("logger is nil")
	}
	return &StateSupervisor{
		sugar:  logger.Sugar(),
		states: make(map[string]*State),
	}, nil
}

func (sv *StateSupervisor) Add(s *State) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if s == nil {
		return errors.New("input param is nil")
	}
	if sv.started {
		return ErrAlreadyStarted
	}
	sv.states[s.Id] = s
	sv.sugar.Infof("added %v", s)
	return nil
}

func (sv *StateSupervisor) SetGenDataFunc(f DataSourceFunc) {
	sv.sourceFunc = f
}

// Go starts the source and the state workers. They run until ctx ends or,
// for the source, until it returns ErrSourceDone.
func (sv *StateSupervisor) Go(ctx context.Context) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.sourceFunc == nil || len(sv.states) == 0 {
		return ErrNotInitialized
	}
	if sv.started {
		return ErrAlreadyStarted
	}
	for id, state := range sv.states {
		if state.doFunc == nil {
			return fmt.Errorf("%w: doFunc of %s not set", ErrNotInitialized, id)
		}
	}
	sv.started = true
	sv.sugar.Infoln("starting ...")

	sv.wg.Add(1)
	go sv.sourceJob(ctx)

	for _, state := range sv.states {
		for i := uint(0); i < state.GoCount; i++ {
			sv.wg.Add(1)
			go state.job(ctx, sv)
		}
		sv.sugar.Infof("%v started", state)
	}
	return nil
}

func (sv *StateSupervisor) route(ctx context.Context, data DataToBeVerified) error {
	sv.mu.RLock()
	state, ok := sv.states[data.NextState]
	sv.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStateNotFound, data.NextState)
	}
	return state.push(ctx, data)
}

func (sv *StateSupervisor) sourceJob(ctx context.Context) {
	defer sv.wg.Done()

	const msg = "sourceJob"
	sv.sugar.Infoln(msg, "started")
	for ctx.Err() == nil {
		data, err := sv.sourceFunc(ctx)
		if errors.Is(err, ErrSourceDone) {
			sv.sugar.Infoln(msg, "source exhausted")
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				sv.sugar.Errorw(msg, "error", err)
			}
			continue
		}
		if data.NextState == "" {
			continue
		}
		if err := sv.route(ctx, data); err != nil && ctx.Err() == nil {
			sv.sugar.Errorw(msg+" route", "error", err)
		}
	}
	sv.sugar.Infoln(msg + " done")
}

// Wait blocks until every worker has stopped and returns the counters of
// each state.
func (sv *StateSupervisor) Wait() map[string]Counters {
	sv.wg.Wait()

	sv.mu.RLock()
	defer sv.mu.RUnlock()
	out := make(map[string]Counters, len(sv.states))
	for id, s := range sv.states {
		out[id] = s.Counters()
	}
	sv.sugar.Infoln("ALL graceful shutdown")
	return out
}
