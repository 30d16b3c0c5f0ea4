package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/kimhsiao/tijara/backend/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed
	ExitCommandError = 2 // bad flags, config or unreachable local state
)

// ExitError carries the process exit code of a failed command.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not
// ExitErrors map to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope printed with --format json.
type Response struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed command in JSON output.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Printer writes command results in the selected format.
type Printer struct {
	Format string
	Out    io.Writer
}

// Success prints data. text renders it with render.
func (p *Printer) Success(data interface{}, render func(w io.Writer)) error {
	if p.Format == "json" {
		return p.writeJSON(Response{Status: "ok", Data: data})
	}
	render(p.Out)
	return nil
}

// Failure prints err in JSON mode; text mode leaves reporting to main.
func (p *Printer) Failure(err error) {
	if p.Format != "json" || err == nil {
		return
	}
	_ = p.writeJSON(Response{Status: "error", Error: &ErrorBody{
		Code:    string(errors.CodeOf(err)),
		Message: err.Error(),
	}})
}

func (p *Printer) writeJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.Out, string(data))
	return err
}
