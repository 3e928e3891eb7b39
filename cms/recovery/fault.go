package recovery

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Completion codes assigned to Go runtime errors.
const (
	CodeOperation     = 0x0C1 // operation exception
	CodeProtection    = 0x0C4 // protection or addressing exception
	CodeDataException = 0x0C6 // specification exception
	CodeFixedDivide   = 0x0C9 // fixed-point divide exception

	// CodeUserDefault is the user completion code of an arbitrary panic value.
	CodeUserDefault = 0x001
)

// AbendError is the panic value raised by Abend and UserAbend.
type AbendError struct {
	Completion int
	Reason     int
	User       bool
}

func (a *AbendError) Error() string {
	if a.User {
		return fmt.Sprintf("ABEND U%04d REASON %08X", a.Completion, uint32(a.Reason))
	}
	return fmt.Sprintf("ABEND S%03X REASON %08X", a.Completion, uint32(a.Reason))
}

// Abend raises a system completion code, e.g. Abend(0x0C4, 0x11).
func Abend(cc, rsn int) {
	panic(&AbendError{Completion: cc & 0xFFF, Reason: rsn})
}

// UserAbend raises a user completion code.
func UserAbend(cc, rsn int) {
	panic(&AbendError{Completion: cc & 0xFFF, Reason: rsn, User: true})
}

// Fault describes a panic caught by a router.
type Fault struct {
	// Value is the recovered panic value.
	Value any
	AbendError
	// Stack is the goroutine stack at the time of the fault.
	Stack []byte
	// State names the state that handled the fault.
	State string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s (%v)", f.AbendError.Error(), f.Value)
}

func (f *Fault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// AbendCode returns the completion and reason code of f. A nil fault reports
// cc -1, rsn 0.
func AbendCode(f *Fault) (cc, rsn int) {
	if f == nil {
		return -1, 0
	}
	return f.Completion, f.Reason
}

func newFault(v any, stack []byte) *Fault {
	return &Fault{Value: v, AbendError: classify(v), Stack: stack}
}

// classify maps a panic value to completion and reason codes.
func classify(v any) AbendError {
	var ae *AbendError
	if err, ok := v.(error); ok && errors.As(err, &ae) {
		return *ae
	}
	var re runtime.Error
	if err, ok := v.(error); ok && errors.As(err, &re) {
		msg := re.Error()
		switch {
		case strings.Contains(msg, "nil pointer dereference"),
			strings.Contains(msg, "invalid memory address"):
			return AbendError{Completion: CodeProtection, Reason: 0x04}
		case strings.Contains(msg, "fault address"):
			return AbendError{Completion: CodeProtection, Reason: 0x11}
		case strings.Contains(msg, "integer divide"),
			strings.Contains(msg, "integer overflow"):
			return AbendError{Completion: CodeFixedDivide, Reason: 0x09}
		case strings.Contains(msg, "index out of range"),
			strings.Contains(msg, "slice bounds out of range"):
			return AbendError{Completion: CodeDataException, Reason: 0x06}
		default:
			return AbendError{Completion: CodeOperation, Reason: 0x01}
		}
	}
	return AbendError{Completion: CodeUserDefault, User: true}
}
