package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoScore reports a backend response with no valid score marker
var ErrNoScore = errors.New("no SCORE_ marker in response")

var (
	scoreRe     = regexp.MustCompile(`SCORE_(\d+)`)
	analysisRe  = regexp.MustCompile(`(?s)<ANALYSIS>(.*?)</ANALYSIS>`)
	answerRe    = regexp.MustCompile(`(?s)<ANSWER>(.*?)</ANSWER>`)
	questionsRe = regexp.MustCompile(`(?s)<FOLLOW_UP_QUESTIONS>(.*?)</FOLLOW_UP_QUESTIONS>`)
	questionRe  = regexp.MustCompile(`(?m)^Q_\d+\.\s*(.+)$`)
)

// ParsedResponse is the validated result of a backend response body
type ParsedResponse struct {
	Score             int
	Analysis          string
	FollowUpQuestions []string
}

// ParseResponse extracts the score, analysis and follow-up questions
// from a backend response. A missing or out-of-range score marker is
// a parse failure, never silently defaulted.
func ParseResponse(content string) (*ParsedResponse, error) {
	m := scoreRe.FindStringSubmatch(content)
	if m == nil {
		return nil, ErrNoScore
	}
	score, err := strconv.Atoi(m[1])
	if err != nil || score < 0 || score > 10 {
		return nil, fmt.Errorf("%w: invalid score %q", ErrNoScore, m[1])
	}

	parsed := &ParsedResponse{Score: score}

	if am := analysisRe.FindStringSubmatch(content); am != nil {
		parsed.Analysis = strings.TrimSpace(am[1])
	} else {
		// No tags: the whole body is the analysis.
		parsed.Analysis = strings.TrimSpace(content)
	}

	if qm := questionsRe.FindStringSubmatch(content); qm != nil {
		for _, q := range questionRe.FindAllStringSubmatch(qm[1], -1) {
			parsed.FollowUpQuestions = append(parsed.FollowUpQuestions, strings.TrimSpace(q[1]))
		}
	}

	return parsed, nil
}

// parseAnswer extracts the answer body and any fresh follow-up
// questions from a follow-up response. A body without ANSWER tags is
// taken whole, so an off-format model still produces a usable answer.
func parseAnswer(content string) (answer string, questions []string) {
	if m := answerRe.FindStringSubmatch(content); m != nil {
		answer = strings.TrimSpace(m[1])
	} else {
		answer = strings.TrimSpace(content)
	}

	if qm := questionsRe.FindStringSubmatch(content); qm != nil {
		for _, q := range questionRe.FindAllStringSubmatch(qm[1], -1) {
			questions = append(questions, strings.TrimSpace(q[1]))
		}
	}
	return answer, questions
}
