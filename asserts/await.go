package asserts

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// pollInterval is the cadence of the polling primitives.
const pollInterval = 10 * time.Millisecond

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// AwaitUntilAsserted polls op until it succeeds or timeout elapses. Op
// always runs at least once. On deadline the returned Failure wraps the
// last error op produced. A skip signal from op stops polling and is
// returned unchanged.
func AwaitUntilAsserted(ctx context.Context, op func() error, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := op()
		if err == nil {
			return nil
		}
		if IsSkip(err) {
			return err
		}
		if !time.Now().Before(deadline) {
			return &Failure{
				Msg: fmt.Sprintf("assertion did not succeed within %s", timeout),
				Err: err,
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting assertion: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// AwaitDuring runs op repeatedly for at least window and fails on the
// first invocation that errors inside it. Op always runs at least once.
// A skip signal from op stops the window and is returned unchanged.
func AwaitDuring(ctx context.Context, op func() error, window time.Duration) error {
	end := time.Now().Add(window)
	for {
		if err := op(); err != nil {
			if IsSkip(err) {
				return err
			}
			return &Failure{
				Msg: fmt.Sprintf("assertion stopped holding inside the %s window", window),
				Err: err,
			}
		}
		if !time.Now().Before(end) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting sustained assertion: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// ThrewError runs op and asserts that it returned an error assignable to
// want (inspecting the whole unwrap chain; interface types match by
// implementation). A nil error or a mismatched type is a Failure. A skip
// signal is returned unchanged.
func ThrewError(op func() error, want reflect.Type) error {
	err := op()
	if err == nil {
		return Failf("expected %s to be raised but nothing was", typeName(want))
	}
	if IsSkip(err) {
		return err
	}
	if ErrorOfType(err, want) {
		return nil
	}
	return &Failure{
		Msg: fmt.Sprintf("expected %s to be raised but got %T", typeName(want), err),
		Err: err,
	}
}

// ErrorOfType reports whether err or anything it wraps is assignable to
// want. Interface types match any error implementing them.
func ErrorOfType(err error, want reflect.Type) bool {
	if err == nil || want == nil {
		return false
	}
	if want.Kind() != reflect.Interface && !want.Implements(errorInterface) {
		return false
	}
	target := reflect.New(want)
	return errors.As(err, target.Interface())
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t == errorInterface {
		return "error"
	}
	return t.String()
}
