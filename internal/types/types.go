package types

import "time"

// PostState tracks where a post is in the rating lifecycle
type PostState string

const (
	StatePending     PostState = "pending"
	StateStreaming   PostState = "streaming"
	StateRated       PostState = "rated"
	StateError       PostState = "error"
	StateCached      PostState = "cached"
	StateBlacklisted PostState = "blacklisted"
)

// Post represents a single scraped feed post
type Post struct {
	ID           string   `json:"id"`
	AuthorHandle string   `json:"author_handle"`
	Text         string   `json:"text"`
	MediaURLs    []string `json:"media_urls"`
	IsAd         bool     `json:"is_ad"`

	// Weak references, resolved by id through the live registry or
	// the rating cache. Never owned by this post.
	ParentID    string `json:"parent_id,omitempty"`
	QuoteID     string `json:"quote_id,omitempty"`
	QuoteHandle string `json:"quote_handle,omitempty"`

	// Quoted content is captured inline at extraction time because
	// the quoted post may never appear in the feed on its own.
	QuoteText      string   `json:"quote_text,omitempty"`
	QuoteMediaURLs []string `json:"quote_media_urls,omitempty"`

	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`

	State  PostState `json:"state"`
	Rating *Rating   `json:"rating,omitempty"`

	// Cacheable is false for posts with a synthesized fallback id.
	// Such posts are never written to the rating cache.
	Cacheable bool `json:"cacheable"`

	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewPost creates a fresh post in the pending state
func NewPost(id string, cacheable bool) *Post {
	return &Post{
		ID:           id,
		State:        StatePending,
		Cacheable:    cacheable,
		DiscoveredAt: time.Now(),
	}
}

// IsTerminal reports whether the post has finished the pipeline
func (p *Post) IsTerminal() bool {
	switch p.State {
	case StateRated, StateError, StateCached, StateBlacklisted:
		return true
	}
	return false
}

// InFlight reports whether the post is scheduled or actively rating.
// A new discovery for an in-flight or rated id must not be rescheduled.
func (p *Post) InFlight() bool {
	return p.State == StatePending || p.State == StateStreaming
}

// QATurn is one question/answer exchange shown with a rating
type QATurn struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ChatMessage is one message in the backend conversation format
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Rating is the scored verdict produced for a post
type Rating struct {
	// Score is nil until a valid SCORE_ marker has been parsed.
	Score     *int   `json:"score"`
	Analysis  string `json:"analysis"`
	Reasoning string `json:"reasoning"`

	// Metadata keys are open-ended: model, prompt/completion tokens,
	// latency, price, provider, generation id, and so on.
	Metadata map[string]any `json:"metadata,omitempty"`

	FollowUpQuestions   []string      `json:"follow_up_questions,omitempty"`
	ConversationHistory []QATurn      `json:"conversation_history,omitempty"`
	QAHistory           []ChatMessage `json:"qa_history,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	Streaming   bool      `json:"streaming"`
	FromStorage bool      `json:"from_storage,omitempty"`
}

// NewRating creates an empty rating for a post entering the pipeline
func NewRating() *Rating {
	return &Rating{
		Metadata:  make(map[string]any),
		Timestamp: time.Now(),
	}
}

// IsValid reports whether the rating carries a usable score
func (r *Rating) IsValid() bool {
	return r != nil && r.Score != nil && *r.Score >= 0 && *r.Score <= 10
}

// SetMetadata records a single metadata value
func (r *Rating) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// UpdateMetadata merges a metadata mapping into the rating
func (r *Rating) UpdateMetadata(meta map[string]any) {
	for k, v := range meta {
		r.SetMetadata(k, v)
	}
}

// AddConversationTurn appends a Q&A exchange. Finalized ratings are
// immutable except for appended turns, so this is always allowed.
func (r *Rating) AddConversationTurn(question, answer, reasoning string) {
	r.ConversationHistory = append(r.ConversationHistory, QATurn{
		Question:  question,
		Answer:    answer,
		Reasoning: reasoning,
	})
}
