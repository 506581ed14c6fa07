package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_Full(t *testing.T) {
	content := `<ANALYSIS>
Sharp observation, well sourced.
</ANALYSIS>
SCORE_8
<FOLLOW_UP_QUESTIONS>
Q_1. What is the primary source?
Q_2. Does the author have a track record?
</FOLLOW_UP_QUESTIONS>`

	parsed, err := ParseResponse(content)
	require.NoError(t, err)
	assert.Equal(t, 8, parsed.Score)
	assert.Equal(t, "Sharp observation, well sourced.", parsed.Analysis)
	assert.Equal(t, []string{
		"What is the primary source?",
		"Does the author have a track record?",
	}, parsed.FollowUpQuestions)
}

func TestParseResponse_NoTags(t *testing.T) {
	parsed, err := ParseResponse("Pretty good post overall. SCORE_6")
	require.NoError(t, err)
	assert.Equal(t, 6, parsed.Score)
	assert.Equal(t, "Pretty good post overall. SCORE_6", parsed.Analysis)
	assert.Empty(t, parsed.FollowUpQuestions)
}

func TestParseResponse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"no marker", "This post is a 7 out of 10."},
		{"score too high", "SCORE_11"},
		{"score way out of range", "SCORE_100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.content)
			assert.ErrorIs(t, err, ErrNoScore)
		})
	}
}

func TestParseResponse_BoundaryScores(t *testing.T) {
	for _, content := range []string{"SCORE_0", "SCORE_10"} {
		parsed, err := ParseResponse(content)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, parsed.Score, 0)
		assert.LessOrEqual(t, parsed.Score, 10)
	}
}
