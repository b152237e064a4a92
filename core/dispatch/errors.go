package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

var (
	// ErrSkipUpdate marks a handler failure that is contained to its update.
	ErrSkipUpdate = errors.New("dispatch: skip update")
	// ErrCycleInProgress is returned when RunCycle is entered while another cycle runs.
	ErrCycleInProgress = errors.New("dispatch: cycle already in progress")
)

// Skip wraps err so the dispatcher drops the update instead of aborting the cycle.
func Skip(err error) error {
	if err == nil {
		return ErrSkipUpdate
	}
	return fmt.Errorf("%w: %w", ErrSkipUpdate, err)
}

// ErrorKind separates failures worth another cycle from those that need an operator.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindFatal
)

func (k ErrorKind) String() string {
	if k == KindFatal {
		return "fatal"
	}
	return "transient"
}

// CycleError describes why a cycle stopped before persisting its cursor.
type CycleError struct {
	Kind     ErrorKind
	Op       string
	UpdateID int
	Err      error
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dispatch ")
	b.WriteString(e.Op)
	if e.UpdateID != 0 {
		fmt.Fprintf(&b, " update %d", e.UpdateID)
	}
	fmt.Fprintf(&b, " (%s): %v", e.Kind, e.Err)
	return b.String()
}

func (e *CycleError) Unwrap() error { return e.Err }

// Retryable reports whether the next cycle may succeed without intervention.
func (e *CycleError) Retryable() bool { return e.Kind != KindFatal }

// Code is a short upper-case label for the underlying failure.
func (e *CycleError) Code() string { return errorCode(e.Err) }

func errorCode(err error) string {
	var p *PanicError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &p):
		return "PANIC"
	case errors.Is(err, ErrSkipUpdate):
		return "SKIP"
	}
	if kind := netutil.Classify(err); kind != "unknown" {
		return strings.ToUpper(kind)
	}
	return typeName(err)
}

// Classify wraps err from op into a CycleError. A rejected bot token is fatal.
func Classify(op string, updateID int, err error) *CycleError {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindTransient
	if netutil.IsAuthFailure(err) {
		kind = KindFatal
	}
	return &CycleError{Kind: kind, Op: op, UpdateID: updateID, Err: err}
}

// IsFatal reports whether err stops the supervisor.
func IsFatal(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce) && ce.Kind == KindFatal
}

// PanicError carries a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
