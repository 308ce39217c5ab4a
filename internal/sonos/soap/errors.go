package soap

import (
	"errors"
	"fmt"
	"strconv"
)

// FaultError is returned when a device answers a control request with a
// non-success HTTP status. Code holds the UPnP errorCode from the fault body,
// or is empty when the body carried none.
type FaultError struct {
	Action      string
	StatusCode  int
	Code        string
	Description string
	Body        []byte
}

func (e *FaultError) Error() string {
	switch {
	case e.Code == "":
		return fmt.Sprintf("action %s failed: http %d", e.Action, e.StatusCode)
	case e.Description == "":
		return fmt.Sprintf("action %s rejected: http %d, code %s", e.Action, e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("action %s rejected: http %d, code %s (%s)", e.Action, e.StatusCode, e.Code, e.Description)
	}
}

// ErrorCode returns the numeric UPnP error code, if one was present.
func (e *FaultError) ErrorCode() (int, bool) {
	if e.Code == "" {
		return 0, false
	}
	code, err := strconv.Atoi(e.Code)
	if err != nil {
		return 0, false
	}
	return code, true
}

// TimeoutError indicates a request timed out.
type TimeoutError struct {
	Action string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action %s timed out", e.Action)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// UnreachableError indicates the device could not be reached.
type UnreachableError struct {
	Action string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("action %s unreachable: %v", e.Action, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err means the device could not be talked to
// at all, as opposed to the device answering with a fault.
func IsTransportError(err error) bool {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var unreachableErr *UnreachableError
	return errors.As(err, &unreachableErr)
}

// HasFaultCode reports whether err is a FaultError carrying the given UPnP code.
func HasFaultCode(err error, code int) bool {
	var fault *FaultError
	if !errors.As(err, &fault) {
		return false
	}
	got, ok := fault.ErrorCode()
	return ok && got == code
}
