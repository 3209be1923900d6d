package e

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ExtendedError is our custom error
type ExtendedError struct {
	InnerError error
	Message    string
	original   error
}

// Error returns the string of the inner error
func (e *ExtendedError) Error() string {
	return fmt.Sprintf("%+v", e.InnerError)
}

// Unwrap returns the originating error, so errors.Is/As work through the wrapper
func (e *ExtendedError) Unwrap() error {
	return e.original
}

// IsError checks if the originating error is the specified target
func (e *ExtendedError) IsError(tgt error) bool {
	return errors.Is(e.original, tgt)
}

// AsError calls errors.As on the original error with the specified target error.
// If it is the target error, it will set the target as the original error value
// and return true, otherwise it returns false
func (e *ExtendedError) AsError(tgt interface{}) bool {
	return errors.As(e.original, tgt)
}

// N creates a new error based on the code and message, it also
// sets the Message property of the extended error to the passed message
func N(code, msg string) (err error) {
	return WWM(nil, code, msg, msg)
}

// W wraps the error with the code and any debug messages. See Wrap
func W(err error, code string, debugMessages ...string) error {
	return Wrap(err, code, debugMessages...)
}

// WWM calls Wrap, then sets the extended error's message to the passed message.
func WWM(err error, code, msg string, debugMessages ...string) error {
	ee := Wrap(err, code, debugMessages...)
	ee.Message = NewStr(code, msg)
	return ee
}

// NewStr creates a new error string based on the code and messages
func NewStr(code string, msgList ...string) (s string) {
	if len(msgList) == 0 {
		return code
	}
	return fmt.Sprintf("%s: %s", code, strings.Join(msgList, "|"))
}

// AsExtendedError helper function that returns the error as an ExtendedError
// if it is one. Otherwise it returns nil
func AsExtendedError(err error) (ee *ExtendedError) {
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}

// editErrorMessageForPQIOError returns an edited message for the error if it is a pg io error
// this is so the logs do not consider it like a new error if it is triggered within a short period of time
func editErrorMessageForPQIOError(errorMsg string) string {
	re := regexp.MustCompile(`block [\d]+`)

	return re.ReplaceAllString(errorMsg, "block X")
}

// ContainsError checks if the error contains the specified error message
func ContainsError(err error, msg string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), msg)
}

// Contains checks if the error contains the code
func Contains(code string, err error) bool {
	return ContainsError(err, fmt.Sprintf("[%s", code))
}

// Wrap checks if the passed error has been wrapped before by this func
// and either wraps the original error as an ExtendedError or adds the
// debug message to the already existing ExtendedError's InnerError.
// This function always returns an extended error
func Wrap(err error, code string, debugMessages ...string) (ee *ExtendedError) {
	msg := NewStr(code, debugMessages...)

	// If the error is already an extended error, then just update the
	// inner error
	if ee = AsExtendedError(err); ee != nil {
		ee.InnerError = fmt.Errorf("[%s]%s", msg, ee.InnerError.Error())
		return ee
	}

	ee = &ExtendedError{
		original: err,
	}

	if err == nil {
		ee.InnerError = pkgerrors.New(fmt.Sprintf("[%s]", msg))
		ee.Message = msg
	} else {
		var pkgerr error
		if IsPQError(err, PQErr58030IOError) {
			pkgerr = pkgerrors.Wrap(err, editErrorMessageForPQIOError(err.Error()))
		} else {
			pkgerr = pkgerrors.WithStack(err)
		}

		ee.InnerError = fmt.Errorf("[%s]%+v", msg, pkgerr)
		ee.Message = NewStr(code, MsgUnknownInternalServerError)
	}

	return ee
}
