package steps

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stepward/stepward/asserts"
)

// RegisterBuiltins installs the built-in step vocabulary used by scenario
// files:
//
//	<name> is set to <value>          store a variable (value parsed as YAML)
//	<name> is equal to <expression>   pattern-aware assertion
//	<name> eventually equals <expr>   polling assertion with the session timeout
//	<name> is incremented             numeric increment, starting at 0
//	the step sleeps <N>ms
//	the step fails with "<message>"
//	the step raises a <TypeName>      construct a registered error type
func RegisterBuiltins(reg *Registry) error {
	builtins := []struct {
		pattern string
		handler Handler
	}{
		{`(\S+) is set to (.+)`, setVariable},
		{`(\S+) is equal to (.+)`, assertEqual},
		{`(\S+) eventually equals (.+)`, assertEventually},
		{`(\S+) is incremented`, increment},
		{`the step sleeps (\d+)ms`, sleepStep},
		{`the step fails with "(.+)"`, failWith},
		{`the step raises a (\S+)`, raiseError},
	}
	for _, b := range builtins {
		if err := reg.Register(b.pattern, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func setVariable(_ context.Context, w *World, args []string) error {
	raw := w.ResolvePattern(args[1])
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	w.Scope().Set(args[0], v)
	return nil
}

func assertEqual(_ context.Context, w *World, args []string) error {
	return asserts.EqualInAnyOrder(
		w.ResolveOrSelf(args[0]),
		asserts.Pattern(w.ResolvePattern(args[1])),
	)
}

func assertEventually(ctx context.Context, w *World, args []string) error {
	return w.AwaitDefault(ctx, func() error {
		return asserts.EqualInAnyOrder(
			w.ResolveOrSelf(args[0]),
			asserts.Pattern(w.ResolvePattern(args[1])),
		)
	})
}

func increment(_ context.Context, w *World, args []string) error {
	cur, _ := w.Scope().Get(args[0])
	n, err := toInt(cur)
	if err != nil {
		return asserts.Failf("cannot increment %s: %v", args[0], err)
	}
	w.Scope().Set(args[0], n+1)
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
}

func sleepStep(ctx context.Context, _ *World, args []string) error {
	ms, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}

func failWith(_ context.Context, w *World, args []string) error {
	return asserts.Failf("%s", w.ResolvePattern(args[0]))
}

func raiseError(_ context.Context, w *World, args []string) error {
	t, err := w.Types().Resolve(args[0])
	if err != nil {
		return err
	}
	switch t.Kind() {
	case reflect.Interface:
		return errors.New("error raised by step")
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			v := reflect.New(t.Elem()).Interface()
			if f, ok := v.(*asserts.Failure); ok {
				f.Msg = "failure raised by step"
			}
			if e, ok := v.(error); ok {
				return e
			}
		}
	case reflect.Struct:
		if e, ok := reflect.New(t).Elem().Interface().(error); ok {
			return e
		}
	}
	return fmt.Errorf("cannot construct error type %s", args[0])
}
