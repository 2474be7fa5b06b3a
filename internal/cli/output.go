package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // invalid shard map or unroutable statement
	ExitCommandError = 2 // unreadable file, bad arguments
)

// Error codes of JSON responses.
const (
	ErrCodeRead    = "E001"
	ErrCodeInvalid = "E002"
	ErrCodeRoute   = "E003"
)

// ExitError is an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit code of err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON output of every command.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command.
type ResponseError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type formatter struct {
	format string
	w      io.Writer
}

// success writes data, or text in text mode.
func (f *formatter) success(data any, text string) error {
	if f.format == "json" {
		return json.NewEncoder(f.w).Encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.w, text)
	return err
}

// fail writes the error and returns it as an ExitError.
func (f *formatter) fail(exit int, code, message string, err error, details ...string) error {
	if f.format == "json" {
		_ = json.NewEncoder(f.w).Encode(Response{Status: "error", Error: &ResponseError{Code: code, Message: message, Details: details}})
	} else {
		fmt.Fprintf(f.w, "Error [%s]: %s\n", code, message)
		for _, d := range details {
			fmt.Fprintf(f.w, "  - %s\n", d)
		}
	}
	return &ExitError{Code: exit, Message: code + " " + message, Err: err}
}
