package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func TestNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid configuration", func(t *testing.T) {
		cfg := config.NewDefault()
		a, err := New(ctx, "/mnt/test", cfg, testSubject())
		if err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
		if a == nil {
			t.Fatal("New() returned nil adapter")
		}
		if a.mountPoint != "/mnt/test" {
			t.Errorf("a.mountPoint = %q, want %q", a.mountPoint, "/mnt/test")
		}
		if a.started {
			t.Error("a.started = true, want false")
		}
	})

	t.Run("empty mount point", func(t *testing.T) {
		cfg := config.NewDefault()
		_, err := New(ctx, "", cfg, testSubject())
		if err == nil {
			t.Error("New() with empty mount point should return error")
		}
		if !strings.Contains(err.Error(), "mount point") {
			t.Errorf("error should contain 'mount point', got %v", err)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := config.NewDefault()
		cfg.Mounts = nil
		_, err := New(ctx, "/mnt/test", cfg, testSubject())
		if err == nil {
			t.Error("New() with invalid config should return error")
		}
		if !strings.Contains(err.Error(), "invalid configuration") {
			t.Errorf("error should contain 'invalid configuration', got %v", err)
		}
	})
}

func TestAdapterDoubleStart(t *testing.T) {
	t.Parallel()

	// Start() twice should error without needing the adapter to actually
	// be mounted - the started flag alone guards it.
	cfg := config.NewDefault()
	a := &Adapter{
		mountPoint: "/mnt/test",
		config:     cfg,
		subject:    testSubject(),
		started:    true,
	}

	ctx := context.Background()
	err := a.Start(ctx)
	if err == nil {
		t.Error("Start() on already started adapter should return error")
	}
	if !strings.Contains(err.Error(), "already started") {
		t.Errorf("error should contain 'already started', got %v", err)
	}
}

func TestAdapterStopNotStarted(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefault()
	a := &Adapter{
		mountPoint: "/mnt/test",
		config:     cfg,
		subject:    testSubject(),
		started:    false,
	}

	ctx := context.Background()
	err := a.Stop(ctx)
	if err == nil {
		t.Error("Stop() on non-started adapter should return error")
	}
	if !strings.Contains(err.Error(), "not started") {
		t.Errorf("error should contain 'not started', got %v", err)
	}
}

func testSubject() types.Subject {
	return types.Subject{ID: "user:test", Zone: "default"}
}
