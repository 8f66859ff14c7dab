package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mikey-austin/sonic_utopia/internal/catalog"
	"github.com/mikey-austin/sonic_utopia/internal/resource"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
)

func TestErrorForReplyCode(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"NO_SERVER", ExitNoServer},
		{"NOT_FOUND", ExitNotFound},
		{"INVALID", ExitUsage},
		{"OUT_OF_RANGE", ExitUsage},
		{"EMPTY_QUEUE", ExitUsage},
		{"UPSTREAM", ExitUpstream},
		{"PLAYBACK_FAILED", ExitRuntime},
		{"UNKNOWN", ExitRuntime},
	}

	for _, test := range tests {
		err := ErrorForReplyCode(test.code, "message")
		if err.Code != test.expected {
			t.Fatalf("code %s expected %d got %d", test.code, test.expected, err.Code)
		}
	}
}

func TestExitCodeForDomainErrors(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{nil, ExitOK},
		{fmt.Errorf("%w: %w", resource.ErrResolution, servers.ErrNoActiveServer), ExitNoServer},
		{fmt.Errorf("use: %w", servers.ErrUnknownServer), ExitNotFound},
		{&subsonic.APIError{Code: subsonic.ErrCodeNotFound, Message: "gone"}, ExitNotFound},
		{fmt.Errorf("get: %w", &subsonic.APIError{Code: subsonic.ErrCodeWrongAuth}), ExitUpstream},
		{fmt.Errorf("%w: offline", catalog.ErrFetch), ExitUpstream},
		{errors.New("boom"), ExitRuntime},
		{WrapError(ExitUsage, "bad", nil), ExitUsage},
	}

	for i, test := range tests {
		if got := ExitCode(test.err); got != test.expected {
			t.Fatalf("case %d: expected %d got %d", i, test.expected, got)
		}
	}
}

func TestClassifyErrorKeepsCLIError(t *testing.T) {
	original := &CLIError{Code: ExitNotFound, Msg: "missing"}
	if got := ClassifyError("wrapped", fmt.Errorf("ctx: %w", original)); got != original {
		t.Fatalf("expected existing cli error returned")
	}
	got := ClassifyError("list albums", servers.ErrNoActiveServer)
	if got.Code != ExitNoServer || got.Msg != "list albums" {
		t.Fatalf("unexpected classification %+v", got)
	}
}
