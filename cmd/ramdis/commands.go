package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/PlatformLab/Ramdis/internal/engine"
)

type command struct {
	args  string
	arity int // minimum argument count
	even  bool
	run   func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error
}

var commands = map[string]command{
	"get": {"key", 1, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		v, err := e.Get(ctx, args[0])
		if errors.Is(err, engine.ErrNotFound) {
			return printNil(w)
		}
		if err != nil {
			return err
		}
		return printBulk(w, v)
	}},
	"set": {"key value", 2, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		if err := e.Set(ctx, args[0], args[1]); err != nil {
			return err
		}
		return printOK(w)
	}},
	"mset": {"key value [key value ...]", 2, true, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		var ks, vs [][]byte
		for i := 0; i < len(args); i += 2 {
			ks = append(ks, args[i])
			vs = append(vs, args[i+1])
		}
		if err := e.MSet(ctx, ks, vs); err != nil {
			return err
		}
		return printOK(w)
	}},
	"incr": {"key", 1, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		n, err := e.Incr(ctx, args[0])
		if err != nil {
			return err
		}
		return printInt(w, n)
	}},
	"incrby": {"key delta", 2, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		delta, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: delta %q", engine.ErrNotInteger, args[1])
		}
		n, err := e.IncrBy(ctx, args[0], delta)
		if err != nil {
			return err
		}
		return printInt(w, n)
	}},
	"del": {"key [key ...]", 1, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		n, err := e.Del(ctx, args...)
		if err != nil {
			return err
		}
		return printInt(w, int64(n))
	}},
	"lpush": {"key value [value ...]", 2, false, pushAll((*engine.Engine).PushHead)},
	"rpush": {"key value [value ...]", 2, false, pushAll((*engine.Engine).PushTail)},
	"lpop":  {"key", 1, false, popOne((*engine.Engine).PopHead)},
	"rpop":  {"key", 1, false, popOne((*engine.Engine).PopTail)},
	"lrange": {"key start stop", 3, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		start, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: start %q", engine.ErrNotInteger, args[1])
		}
		stop, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: stop %q", engine.ErrNotInteger, args[2])
		}
		elems, err := e.Range(ctx, args[0], start, stop)
		if errors.Is(err, engine.ErrNotFound) {
			elems, err = nil, nil
		}
		if err != nil {
			return err
		}
		if len(elems) == 0 {
			_, err := fmt.Fprintln(w, "(empty array)")
			return err
		}
		for i, v := range elems {
			if _, err := fmt.Fprintf(w, "%d) %q\n", i+1, v); err != nil {
				return err
			}
		}
		return nil
	}},
	"llen": {"key", 1, false, func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		n, err := e.Len(ctx, args[0])
		if err != nil {
			return err
		}
		return printInt(w, int64(n))
	}},
}

func pushAll(push func(*engine.Engine, context.Context, []byte, []byte) (uint64, error)) func(context.Context, *engine.Engine, [][]byte, io.Writer) error {
	return func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		var total uint64
		for _, v := range args[1:] {
			var err error
			if total, err = push(e, ctx, args[0], v); err != nil {
				return err
			}
		}
		return printInt(w, int64(total))
	}
}

func popOne(pop func(*engine.Engine, context.Context, []byte) ([]byte, error)) func(context.Context, *engine.Engine, [][]byte, io.Writer) error {
	return func(ctx context.Context, e *engine.Engine, args [][]byte, w io.Writer) error {
		v, err := pop(e, ctx, args[0])
		if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrListEmpty) {
			return printNil(w)
		}
		if err != nil {
			return err
		}
		return printBulk(w, v)
	}
}

// run executes one command line against e and prints the reply to w.
func run(ctx context.Context, e *engine.Engine, argv []string, w io.Writer) error {
	name := strings.ToLower(argv[0])
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", argv[0])
	}
	args := make([][]byte, len(argv)-1)
	for i, a := range argv[1:] {
		args[i] = []byte(a)
	}
	if len(args) < cmd.arity || (cmd.even && len(args)%2 != 0) {
		return fmt.Errorf("wrong number of arguments for %s, usage: %s %s", name, name, cmd.args)
	}
	return cmd.run(ctx, e, args, w)
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %s %s\n", name, commands[name].args)
	}
	return b.String()
}

func printNil(w io.Writer) error {
	_, err := fmt.Fprintln(w, "(nil)")
	return err
}

func printOK(w io.Writer) error {
	_, err := fmt.Fprintln(w, "OK")
	return err
}

func printInt(w io.Writer, n int64) error {
	_, err := fmt.Fprintf(w, "(integer) %d\n", n)
	return err
}

func printBulk(w io.Writer, v []byte) error {
	_, err := fmt.Fprintf(w, "%q\n", v)
	return err
}
