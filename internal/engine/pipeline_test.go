package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsxrver/tweetfilter/internal/types"
)

func TestPipelineContext_RegisterLookupDrop(t *testing.T) {
	pc := NewPipelineContext()

	p := types.NewPost("1", true)
	pc.Register(p)

	got, ok := pc.Lookup("1")
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, 1, pc.LiveCount())

	pc.Drop("1")
	_, ok = pc.Lookup("1")
	assert.False(t, ok)
	assert.Equal(t, 0, pc.LiveCount())

	// Dropping again is a no-op.
	pc.Drop("1")
}

func TestPipelineContext_DropCancelsInflight(t *testing.T) {
	pc := NewPipelineContext()

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, pc.acquire("1", cancel))

	pc.Drop("1")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestPipelineContext_AcquireSerializesPerID(t *testing.T) {
	pc := NewPipelineContext()

	assert.True(t, pc.acquire("1", func() {}))
	assert.False(t, pc.acquire("1", func() {}), "second acquire for same id must fail")
	assert.True(t, pc.acquire("2", func() {}), "other ids are unaffected")

	pc.release("1")
	assert.True(t, pc.acquire("1", func() {}))
}

func TestPipelineContext_WaitTurnSpacesCalls(t *testing.T) {
	pc := NewPipelineContext()
	spacing := 30 * time.Millisecond

	start := time.Now()
	require.NoError(t, pc.waitTurn(context.Background(), spacing))
	first := time.Since(start)

	require.NoError(t, pc.waitTurn(context.Background(), spacing))
	second := time.Since(start)

	assert.Less(t, first, spacing, "first call goes through immediately")
	assert.GreaterOrEqual(t, second, spacing)
}

func TestPipelineContext_WaitTurnHonorsCancel(t *testing.T) {
	pc := NewPipelineContext()

	// Push the next slot into the future, then cancel while parked.
	require.NoError(t, pc.waitTurn(context.Background(), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- pc.waitTurn(ctx, time.Hour)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waitTurn did not return after cancel")
	}
}
