package cas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
)

func TestPassthrough_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewPassthrough(t.TempDir())
	require.NoError(t, err)

	hash, err := p.Put(ctx, []byte("hello kernel"))
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	data, err := p.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "hello kernel", string(data))
}

func TestPassthrough_PutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, err := NewPassthrough(t.TempDir())
	require.NoError(t, err)

	h1, err := p.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	h2, err := p.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestPassthrough_GetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	p, err := NewPassthrough(t.TempDir())
	require.NoError(t, err)

	_, err = p.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
	kerr, ok := kernelerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kernelerrors.KindNotFound, kerr.Kind)
}

func TestPassthrough_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	p, err := NewPassthrough(t.TempDir())
	require.NoError(t, err)

	hash, err := p.Put(ctx, []byte("ephemeral"))
	require.NoError(t, err)

	exists, err := p.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, p.Delete(ctx, hash))

	exists, err = p.Exists(ctx, hash)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPassthrough_HeadReportsSize(t *testing.T) {
	ctx := context.Background()
	p, err := NewPassthrough(t.TempDir())
	require.NoError(t, err)

	hash, err := p.Put(ctx, []byte("twelve bytes"))
	require.NoError(t, err)

	obj, err := p.Head(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, int64(len("twelve bytes")), obj.Size)
	assert.Equal(t, hash, obj.Hash)
}

func TestPassthrough_HealthCheck(t *testing.T) {
	p, err := NewPassthrough(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))
}
