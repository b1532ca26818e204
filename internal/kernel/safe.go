package kernel

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a panic recovered from a module hook, write hook, event
// handler or driver.
type PanicError struct {
	Scope string
	Value any
	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic recovered: %v", e.Scope, e.Value)
}

// runSafely calls fn and tags its error with scope. A panic becomes a
// *PanicError so one bad handler cannot take down the service.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Scope: scope, Value: recovered, Stack: debug.Stack()}
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
