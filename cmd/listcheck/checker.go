package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"lukechampine.com/frand"

	"github.com/PlatformLab/Ramdis/internal/checker"
	"github.com/PlatformLab/Ramdis/internal/engine"
)

const (
	statePush = "push"
	statePop  = "pop"

	maxAttempts = 10
)

type item struct {
	key   string
	value string
}

func (i item) String() string {
	return i.key + "=" + i.value
}

// popped the value a pop returned, empty when the list had nothing left
type popped struct {
	key   string
	value string
}

type listChecker struct {
	engine *engine.Engine
	lists  int
	ledger *checker.Ledger

	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

func newListChecker(e *engine.Engine, lists int, logger *zap.Logger) *listChecker {
	if lists < 1 {
		lists = 1
	}
	return &listChecker{
		engine: e,
		lists:  lists,
		ledger: checker.NewLedger(),
		logger: logger,
		sugar:  logger.Sugar(),
	}
}

func (c *listChecker) listKey(i int) string {
	return fmt.Sprintf("listcheck:%d", i)
}

func (c *listChecker) supervisor(pushers, poppers uint) (*checker.StateSupervisor, error) {
	sv, err := checker.NewStateSupervisor(c.logger)
	if err != nil {
		return nil, err
	}

	push := checker.NewState(statePush, pushers, c.logger)
	push.SetDoFunc(c.push)
	if err := sv.Add(push); err != nil {
		return nil, err
	}

	pop := checker.NewState(statePop, poppers, c.logger)
	pop.SetDoFunc(c.pop)
	pop.SetCheckFunc(c.checkPop)
	if err := sv.Add(pop); err != nil {
		return nil, err
	}

	sv.SetGenDataFunc(c.source)
	return sv, nil
}

func (c *listChecker) source(ctx context.Context) (checker.DataToBeVerified, error) {
	if err := ctx.Err(); err != nil {
		return checker.DataToBeVerified{}, checker.ErrSourceDone
	}
	return checker.DataToBeVerified{
		NextState: statePush,
		Data:      item{key: c.listKey(frand.Intn(c.lists)), value: uuid.NewString()},
	}, nil
}

func (c *listChecker) push(ctx context.Context, d checker.DataToBeVerified) (checker.DataToBeVerified, error) {
	it, ok := d.Data.(item)
	if !ok {
		return d, fmt.Errorf("unexpected data %T", d.Data)
	}

	c.ledger.Announce(it.value)
	err := retry(ctx, func() error {
		_, err := c.engine.PushTail(ctx, []byte(it.key), []byte(it.value))
		return err
	})
	if err != nil {
		c.ledger.Abandon(it.value)
		return d, err
	}
	c.ledger.Pushed(it.value)

	d.NextState = statePop
	return d, nil
}

func (c *listChecker) pop(ctx context.Context, d checker.DataToBeVerified) (checker.DataToBeVerified, error) {
	it, ok := d.Data.(item)
	if !ok {
		return d, fmt.Errorf("unexpected data %T", d.Data)
	}

	var v []byte
	err := retry(ctx, func() (err error) {
		v, err = c.engine.PopHead(ctx, []byte(it.key))
		return err
	})
	switch {
	case errors.Is(err, engine.ErrListEmpty), errors.Is(err, engine.ErrNotFound):
		v = nil
	case err != nil:
		return d, err
	}

	return checker.DataToBeVerified{Data: popped{key: it.key, value: string(v)}}, nil
}

func (c *listChecker) checkPop(_, after checker.DataToBeVerified) error {
	p, ok := after.Data.(popped)
	if !ok {
		return fmt.Errorf("unexpected data %T", after.Data)
	}
	if p.value == "" {
		// another popper got there first; drain picks up the rest
		return nil
	}
	return c.ledger.Popped(p.value)
}

// run pushes and pops for d, then drains the lists and checks the ledger.
func (c *listChecker) run(ctx context.Context, d time.Duration, pushers, poppers uint) error {
	sv, err := c.supervisor(pushers, poppers)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := sv.Go(runCtx); err != nil {
		return err
	}
	for state, n := range sv.Wait() {
		c.sugar.Infow("state finished", "state", state, "done", n.Done, "doFailed", n.DoFailed, "checkFailed", n.CheckFailed)
	}

	// the run context is over by now, draining gets its own deadline
	drainCtx, drainCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer drainCancel()
	drained, err := c.drain(drainCtx)
	if err != nil {
		return err
	}
	c.sugar.Infow("drained", "values", drained, "outstanding", c.ledger.Outstanding())

	return c.ledger.Verify()
}

// drain pops every list empty and records what comes out.
func (c *listChecker) drain(ctx context.Context) (int, error) {
	n := 0
	for i := 0; i < c.lists; i++ {
		key := []byte(c.listKey(i))
		for {
			var v []byte
			err := retry(ctx, func() (err error) {
				v, err = c.engine.PopHead(ctx, key)
				return err
			})
			if errors.Is(err, engine.ErrListEmpty) || errors.Is(err, engine.ErrNotFound) {
				break
			}
			if err != nil {
				return n, fmt.Errorf("drain %s: %w", key, err)
			}
			if err := c.ledger.Popped(string(v)); err != nil {
				c.sugar.Errorw("drain", "key", string(key), "error", err)
			}
			n++
		}
	}
	return n, nil
}

// retry calls fn again while it keeps failing with engine.ErrRetryable.
func retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = fn(); !errors.Is(err, engine.ErrRetryable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(frand.Intn(5)+1) * time.Millisecond):
		}
	}
	return err
}
