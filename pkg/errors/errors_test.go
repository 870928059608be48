package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates error with defaults", func(t *testing.T) {
		err := New(KindInvalidArgument, "path must be absolute")
		if err == nil {
			t.Fatal("New returned nil")
		}
		if err.Kind != KindInvalidArgument {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidArgument)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets retryable defaults", func(t *testing.T) {
		if !New(KindTimeout, "t").Retryable {
			t.Error("Timeout should be retryable by default")
		}
		if !New(KindBackend, "t").Retryable {
			t.Error("Backend should be retryable by default")
		}
		if New(KindInvalidArgument, "t").Retryable {
			t.Error("InvalidArgument should not be retryable by default")
		}
	})

	t.Run("sets correct HTTP status defaults", func(t *testing.T) {
		tests := []struct {
			kind       Kind
			wantStatus int
		}{
			{KindNotFound, 404},
			{KindPermissionDenied, 403},
			{KindConflict, 409},
			{KindInvalidArgument, 400},
			{KindTimeout, 408},
			{KindNotLeader, 421},
			{KindIntegrity, 500},
			{KindBackend, 503},
			{KindInternal, 500},
		}

		for _, tt := range tests {
			err := New(tt.kind, "test")
			if err.HTTPStatus != tt.wantStatus {
				t.Errorf("%v: HTTPStatus = %d, want %d", tt.kind, err.HTTPStatus, tt.wantStatus)
			}
		}
	})
}

func TestIsExpected(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindNotFound, KindPermissionDenied, KindConflict, KindTimeout, KindNotLeader} {
		if !IsExpected(New(k, "x")) {
			t.Errorf("%v should be expected", k)
		}
	}
	for _, k := range []Kind{KindIntegrity, KindBackend, KindInternal} {
		if IsExpected(New(k, "x")) {
			t.Errorf("%v should not be expected", k)
		}
	}
	if IsExpected(errors.New("plain")) {
		t.Error("plain errors are never expected")
	}
}

func TestWithMethods(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := New(KindBackend, "put failed").
		WithComponent("cas").
		WithOperation("put").
		WithContext("path", "/a/b").
		WithDetail("bytes", 1024).
		WithCause(cause).
		WithRequestID("req-1")

	if err.Component != "cas" || err.Operation != "put" {
		t.Errorf("component/operation not set: %+v", err)
	}
	if err.Context["path"] != "/a/b" {
		t.Errorf("context not set: %+v", err.Context)
	}
	if err.Details["bytes"] != 1024 {
		t.Errorf("detail not set: %+v", err.Details)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose cause")
	}
	if err.RequestID != "req-1" {
		t.Errorf("RequestID = %q", err.RequestID)
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	t.Parallel()

	a := New(KindNotFound, "a")
	b := New(KindNotFound, "b")
	c := New(KindConflict, "c")

	if !errors.Is(a, b) {
		t.Error("same-kind KernelErrors should match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("different-kind KernelErrors should not match")
	}
}

func TestNotLeaderCarriesAddress(t *testing.T) {
	t.Parallel()

	err := NotLeader("metadatastore", "10.0.0.5:7000")
	if err.Kind != KindNotLeader {
		t.Fatalf("Kind = %v", err.Kind)
	}
	if err.LeaderAddress != "10.0.0.5:7000" {
		t.Errorf("LeaderAddress = %q", err.LeaderAddress)
	}
	if err.HTTPStatus != 421 {
		t.Errorf("HTTPStatus = %d, want 421", err.HTTPStatus)
	}
}

func TestConflictErrCarriesETags(t *testing.T) {
	t.Parallel()

	err := ConflictErr("metadatastore", "version mismatch", "etag-1", "etag-2")
	if err.Details["expected_etag"] != "etag-1" || err.Details["actual_etag"] != "etag-2" {
		t.Errorf("etags not recorded: %+v", err.Details)
	}
}

func TestJSONRoundTrips(t *testing.T) {
	t.Parallel()

	err := NotFound("router", "no mount covers this path").WithContext("path", "/x")
	raw := err.JSON()

	var decoded map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(raw), &decoded); jsonErr != nil {
		t.Fatalf("JSON() produced invalid json: %v", jsonErr)
	}
	if decoded["kind"] != string(KindNotFound) {
		t.Errorf("decoded kind = %v", decoded["kind"])
	}
}

func TestErrorStringIncludesComponentAndOperation(t *testing.T) {
	t.Parallel()

	err := New(KindInternal, "boom").WithComponent("kernel").WithOperation("write")
	msg := err.Error()
	if !strings.Contains(msg, "kernel") || !strings.Contains(msg, "write") {
		t.Errorf("Error() = %q, want component and operation present", msg)
	}
}

func TestWithStackCapturesFrames(t *testing.T) {
	t.Parallel()

	err := Internal("kernel", errors.New("bug")).WithStack()
	if err.Stack == "" {
		t.Error("expected non-empty stack")
	}
}
