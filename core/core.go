package core

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DemoAgentID is the reserved participant identifier for the scripted demo
// agent. A participant with this id is considered ready the moment its
// session is created and its turns are produced without any network call.
const DemoAgentID = "demo-agent"

// SystemSender tags messages emitted by the orchestrator itself rather than
// either persona (e.g. future moderator interjections).
const SystemSender = "system"

// Personality holds the Big-Five trait scores of a profile, each in [0,1].
type Personality struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Vector returns the trait scores as a fixed-order slice suitable for
// similarity math.
func (p Personality) Vector() []float64 {
	return []float64{p.Openness, p.Conscientiousness, p.Extraversion, p.Agreeableness, p.Neuroticism}
}

// ProfileVector aggregates everything the scoring engine needs to know about
// one participant. It is immutable for the duration of a conversation.
type ProfileVector struct {
	UserID      string             `json:"userId"`
	DisplayName string             `json:"displayName,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	OpeningLine string             `json:"openingLine,omitempty"`
	Embedding   []float64          `json:"embedding"`
	Personality Personality        `json:"personality"`
	HardFilters map[string]string  `json:"hardFilters,omitempty"`
	SoftFilters map[string]float64 `json:"softFilters,omitempty"`
}

// Message is one turn of the conversation. Sentiment and TopicEmbedding stay
// at their zero values until the enrichment step fills them in; after that the
// message is treated as immutable.
type Message struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Sentiment      float64   `json:"sentiment"`
	TopicEmbedding []float64 `json:"topicEmbedding,omitempty"`
	TokenCount     int       `json:"tokenCount"`
}

// NewMessage constructs an unenriched message authored by sender.
func NewMessage(sessionID, sender, content string, now time.Time) Message {
	return Message{
		ID:         NewID(),
		SessionID:  sessionID,
		Sender:     sender,
		Content:    content,
		Timestamp:  now.UTC(),
		TokenCount: EstimateTokens(content),
	}
}

// EstimateTokens returns the rough ceil(len/4) token estimate attached to
// every message at creation time.
func EstimateTokens(content string) int {
	return int(math.Ceil(float64(len(content)) / 4.0))
}

// ScoreBreakdown carries the four named compatibility components, each an
// integer percentage in [0,100].
type ScoreBreakdown struct {
	PreConversation int `json:"preConversation"`
	Personality     int `json:"personality"`
	Flow            int `json:"flow"`
	Topic           int `json:"topic"`
}

// CompatibilityResult is the terminal artifact of a session, created exactly
// once when the conversation ends.
type CompatibilityResult struct {
	SessionID            string         `json:"sessionId"`
	CompatibilityScore   int            `json:"compatibilityScore"`
	Breakdown            ScoreBreakdown `json:"breakdown"`
	HardConstraintPassed bool           `json:"hardConstraintPassed"`
	TrendOverTime        []int          `json:"trendOverTime"`
	RecommendMatch       bool           `json:"recommendMatch"`
	ComputedAt           time.Time      `json:"computedAt"`
}

// NewID generates a new unique identifier for messages, sessions and results.
func NewID() string { return uuid.NewString() }
