package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_Lifecycle(t *testing.T) {
	p := NewPost("1", true)
	assert.Equal(t, StatePending, p.State)
	assert.True(t, p.InFlight())
	assert.False(t, p.IsTerminal())

	p.State = StateStreaming
	assert.True(t, p.InFlight())

	for _, s := range []PostState{StateRated, StateError, StateCached, StateBlacklisted} {
		p.State = s
		assert.True(t, p.IsTerminal(), string(s))
		assert.False(t, p.InFlight(), string(s))
	}
}

func TestRating_IsValid(t *testing.T) {
	var nilRating *Rating
	assert.False(t, nilRating.IsValid())

	r := NewRating()
	assert.False(t, r.IsValid(), "score not yet parsed")

	for score, want := range map[int]bool{-1: false, 0: true, 5: true, 10: true, 11: false} {
		s := score
		r.Score = &s
		assert.Equal(t, want, r.IsValid(), "score %d", score)
	}
}

func TestRating_Metadata(t *testing.T) {
	r := &Rating{}
	r.SetMetadata("model", "m1")
	assert.Equal(t, "m1", r.Metadata["model"])

	r.UpdateMetadata(map[string]any{"latency_ms": 42, "model": "m2"})
	assert.Equal(t, "m2", r.Metadata["model"])
	assert.Equal(t, 42, r.Metadata["latency_ms"])
}

func TestRating_AddConversationTurn(t *testing.T) {
	r := NewRating()
	r.AddConversationTurn("why 8?", "because it is well argued", "weighed the sourcing")
	r.AddConversationTurn("any caveats?", "the sample size is small", "")

	require.Len(t, r.ConversationHistory, 2)
	assert.Equal(t, "why 8?", r.ConversationHistory[0].Question)
	assert.Equal(t, "the sample size is small", r.ConversationHistory[1].Answer)
}

func TestRating_ScoreSurvivesJSON(t *testing.T) {
	score := 0
	r := NewRating()
	r.Score = &score

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Rating
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Score, "a zero score is a real score, not an absent one")
	assert.Equal(t, 0, *back.Score)
	assert.True(t, back.IsValid())
}
