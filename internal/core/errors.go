package core

import (
	"errors"
	"fmt"

	"github.com/mikey-austin/sonic_utopia/internal/catalog"
	"github.com/mikey-austin/sonic_utopia/internal/playback"
	"github.com/mikey-austin/sonic_utopia/internal/resource"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitNoServer = 3
	ExitNotFound = 4
	ExitUpstream = 5
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ErrorForReplyCode maps protocol error codes to CLI exit codes.
func ErrorForReplyCode(code string, message string) *CLIError {
	switch code {
	case sonic.CodeNoServer:
		return &CLIError{Code: ExitNoServer, Msg: message}
	case sonic.CodeNotFound:
		return &CLIError{Code: ExitNotFound, Msg: message}
	case sonic.CodeInvalid, sonic.CodeOutOfRange, sonic.CodeEmptyQueue, sonic.CodeUnsupported:
		return &CLIError{Code: ExitUsage, Msg: message}
	case sonic.CodeUpstream:
		return &CLIError{Code: ExitUpstream, Msg: message}
	default:
		return &CLIError{Code: ExitRuntime, Msg: message}
	}
}

// ClassifyError wraps a domain error with the matching exit code.
func ClassifyError(msg string, err error) *CLIError {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	return WrapError(codeFor(err), msg, err)
}

func codeFor(err error) int {
	var apiErr *subsonic.APIError
	switch {
	case errors.Is(err, servers.ErrNoActiveServer):
		return ExitNoServer
	case errors.Is(err, servers.ErrUnknownServer):
		return ExitNotFound
	case errors.As(err, &apiErr):
		if apiErr.Code == subsonic.ErrCodeNotFound {
			return ExitNotFound
		}
		return ExitUpstream
	case errors.Is(err, resource.ErrResolution), errors.Is(err, catalog.ErrFetch):
		return ExitUpstream
	case errors.Is(err, playback.ErrIndexOutOfRange), errors.Is(err, playback.ErrEmptyQueue):
		return ExitUsage
	default:
		return ExitRuntime
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return codeFor(err)
}
