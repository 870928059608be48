package rebac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func TestGrantManager_ExtendAddsNewDescendant(t *testing.T) {
	lister := &fakeLister{byPrefix: map[string][]types.VirtualPath{"/d": {"/d/a.txt"}}}
	e := newTestEngine(t, lister)

	e.Grant("user:bob", "read", "file", "/d", "default")
	require.Eventually(t, func() bool { return e.GrantStats().Completed == 1 }, time.Second, 5*time.Millisecond)

	e.NotifyCreated("/d/new.txt", "default", "file")

	ok, err := e.Check(context.Background(), "user:bob", "read", "file", "/d/new.txt", "default")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrantManager_MoveRelocatesBitmapMembership(t *testing.T) {
	lister := &fakeLister{byPrefix: map[string][]types.VirtualPath{"/dir_a": {"/dir_a/m.txt"}}}
	e := newTestEngine(t, lister)

	e.Grant("user:alice", "read", "file", "/dir_a", "default")
	require.Eventually(t, func() bool { return e.GrantStats().Completed == 1 }, time.Second, 5*time.Millisecond)

	ok, err := e.Check(context.Background(), "user:alice", "read", "file", "/dir_a/m.txt", "default")
	require.NoError(t, err)
	assert.True(t, ok)

	e.NotifyRenamed("/dir_a/m.txt", "/dir_b/m.txt", "default", "file")

	ok, err = e.Check(context.Background(), "user:alice", "read", "file", "/dir_a/m.txt", "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantManager_FailureRecordedWithoutBlockingWrite(t *testing.T) {
	e := newTestEngine(t, &erroringLister{})

	rec := e.Grant("user:bob", "read", "file", "/broken", "default")
	require.Eventually(t, func() bool { return e.GrantStats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.ExpansionFailed, rec.ExpansionStatus)
	assert.NotEmpty(t, e.GrantStats().LastError)
}

type erroringLister struct{}

func (erroringLister) ListDescendants(ctx context.Context, prefix types.VirtualPath, zone string) ([]types.VirtualPath, error) {
	return nil, errSimulatedListFailure
}

var errSimulatedListFailure = errors.New("simulated descendant listing failure")

func TestEngine_NoListerFailsGrant(t *testing.T) {
	e, err := NewEngine(config.ReBACConfig{GrantWalkerBatch: 10}, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	rec := e.Grant("user:bob", "read", "file", "/d", "default")
	time.Sleep(20 * time.Millisecond)
	// With a nil lister the walk fails with errNoLister instead of
	// panicking, leaving the record in a terminal, observable state.
	assert.NotEqual(t, types.ExpansionPending, rec.ExpansionStatus)
}
