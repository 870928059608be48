package rebac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePosix struct {
	mode        uint32
	owner       string
	groupID     string
	knownPaths  map[string]bool
}

func (f *fakePosix) Stat(ctx context.Context, resourceID string) (uint32, string, string, bool) {
	if f.knownPaths != nil && !f.knownPaths[resourceID] {
		return 0, "", "", false
	}
	return f.mode, f.owner, f.groupID, true
}

type fakeGroups struct {
	members map[string]map[string]bool
}

func (f *fakeGroups) IsMember(ctx context.Context, subject, groupID string) bool {
	return f.members[groupID][subject]
}

func TestEngine_PosixOwnerModeBitGrantsRead(t *testing.T) {
	e, err := newEngineWithPosix(t, &fakePosix{mode: 0o600, owner: "user:alice"}, nil)
	require.NoError(t, err)

	ok, err := e.Check(context.Background(), "user:alice", "read", "file", "/a.txt", "default")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Check(context.Background(), "user:bob", "read", "file", "/a.txt", "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_PosixGroupBitRequiresMembership(t *testing.T) {
	groups := &fakeGroups{members: map[string]map[string]bool{"eng": {"user:alice": true}}}
	e, err := newEngineWithPosix(t, &fakePosix{mode: 0o640, owner: "user:root", groupID: "eng"}, groups)
	require.NoError(t, err)

	ok, err := e.Check(context.Background(), "user:alice", "read", "file", "/a.txt", "default")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Check(context.Background(), "user:carol", "read", "file", "/a.txt", "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_PosixOtherBitGrantsEveryone(t *testing.T) {
	e, err := newEngineWithPosix(t, &fakePosix{mode: 0o004, owner: "user:root"}, nil)
	require.NoError(t, err)

	ok, err := e.Check(context.Background(), "user:stranger", "read", "file", "/a.txt", "default")
	require.NoError(t, err)
	assert.True(t, ok)
}

func newEngineWithPosix(t *testing.T, posix PosixResolver, groups GroupResolver) (*Engine, error) {
	t.Helper()
	opts := []Option{WithPosixResolver(posix)}
	if groups != nil {
		opts = append(opts, WithGroupResolver(groups))
	}
	e := newTestEngineWithOpts(t, opts...)
	return e, nil
}
