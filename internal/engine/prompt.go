package engine

import (
	"fmt"

	"github.com/obsxrver/tweetfilter/internal/transport"
	"github.com/obsxrver/tweetfilter/internal/types"
)

const systemPrompt = `You are an expert critic of social media posts. You will be given a
post, optionally preceded by the thread it replies to (separated by
[REPLY] markers) and optionally containing a quoted post (under a
[QUOTED_POST] marker). Review the post with id %s.

Consider these user-defined instructions in your analysis and scoring:
[USER-DEFINED INSTRUCTIONS]:
%s

Provide a concise explanation of your reasoning inside <ANALYSIS>
tags, then on a new line output your final rating in the exact format
SCORE_X, where X is an integer from 0 (lowest quality) to 10 (highest
quality). The response cannot be parsed without the SCORE_ marker.
You may optionally suggest follow-up questions inside
<FOLLOW_UP_QUESTIONS> tags, one per line, formatted as "Q_1. ...".`

const followUpTemplate = `<UserQuestion> %s </UserQuestion>
You MUST match the EXPECTED_RESPONSE_FORMAT
EXPECTED_RESPONSE_FORMAT:
<ANSWER>
(Your answer here)
</ANSWER>
<FOLLOW_UP_QUESTIONS> (Anticipate 3 things the user may ask you next. These questions should not be directed at the user. Only pose a question if you are sure you can answer it, based off your knowledge.)
Q_1. (New Question 1 here)
Q_2. (New Question 2 here)
Q_3. (New Question 3 here)
</FOLLOW_UP_QUESTIONS>`

// buildMessages assembles the backend conversation for a rating call
func buildMessages(postID, contextText, instructions string) []transport.Message {
	if instructions == "" {
		instructions = "Rate the overall quality, originality and substance of the post."
	}
	return []transport.Message{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, postID, instructions)},
		{Role: "user", Content: contextText},
	}
}

// buildFollowUpMessages assembles the conversation for a follow-up
// question about an already-rated post. The prior Q&A exchanges replay
// verbatim so the backend keeps the full discussion; only the newest
// user message carries the response-format template.
func buildFollowUpMessages(p *types.Post, question string) []transport.Message {
	r := p.Rating
	header := fmt.Sprintf("You previously reviewed post %s and rated it SCORE_%d.\n\n<ANALYSIS>\n%s\n</ANALYSIS>\n\nAnswer the user's follow-up questions about this post.",
		p.ID, *r.Score, r.Analysis)

	messages := []transport.Message{{Role: "system", Content: header}}
	for _, m := range r.QAHistory {
		messages = append(messages, transport.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, transport.Message{
		Role:    "user",
		Content: fmt.Sprintf(followUpTemplate, question),
	})
	return messages
}
