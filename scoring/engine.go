package scoring

import (
	"math"
	"time"

	"github.com/hupe1980/duetmatch/core"
)

// Canonical component weights. The observed alternate set
// (0.30/0.20/0.25/0.20) sums to 0.95 and silently deflates the composite;
// this set sums to 1.0 and is the single source of truth.
const (
	WeightPreConversation = 0.30
	WeightPersonality     = 0.25
	WeightFlow            = 0.25
	WeightTopic           = 0.20
)

const (
	// SmoothingAlpha blends each new scaled composite into the running
	// smoothed score.
	SmoothingAlpha = 0.3
	// TopicAlpha blends each new topic cosine into the running topic
	// component.
	TopicAlpha = 0.4
	// RecommendThreshold is the minimum rounded smoothed score for a match
	// recommendation (still gated by the hard-constraint check).
	RecommendThreshold = 65

	flowSentimentWeight = 0.6
	flowLengthWeight    = 0.4
	flowFallback        = 0.5
	// trendStride controls how often a trend sample is recorded: every
	// second message, to keep the series compact.
	trendStride = 2
)

// sideAccum carries the per-persona accumulators feeding the flow and topic
// components.
type sideAccum struct {
	sentimentSum float64
	lengthSum    float64
	messages     int
	latestTopic  []float64
}

func (s sideAccum) meanSentiment() float64 { return s.sentimentSum / float64(s.messages) }
func (s sideAccum) meanLength() float64    { return s.lengthSum / float64(s.messages) }

// State is the immutable-by-convention scoring state for one session. All
// component scores are fractions in [0,1]; Breakdown scales them to integer
// percentages.
type State struct {
	profileA core.ProfileVector
	profileB core.ProfileVector

	preConversation      float64
	personality          float64
	flow                 float64
	topic                float64
	hardConstraintPassed bool

	accumA sideAccum
	accumB sideAccum

	smoothed     float64
	smoothedInit bool
	messageCount int
	trend        []int
}

// NewState seeds scoring state from the two participant profiles.
func NewState(a, b core.ProfileVector) State {
	return State{profileA: a, profileB: b}
}

// PreConversation computes the one-time pre-conversation component (cosine
// similarity of the profile embeddings) and the hard-constraint gate. The
// gate compares only keys present in both filter maps: a single mismatch on
// a shared key fails the whole check, keys present on one side only are
// ignored. Neither value is ever recomputed after this.
func PreConversation(s State) State {
	s.preConversation = clamp01(CosineSimilarity(s.profileA.Embedding, s.profileB.Embedding))

	s.hardConstraintPassed = true
	for key, valA := range s.profileA.HardFilters {
		valB, ok := s.profileB.HardFilters[key]
		if !ok {
			continue
		}
		if valA != valB {
			s.hardConstraintPassed = false
			break
		}
	}
	return s
}

// Update folds one enriched message into the running scores and returns the
// new state. Messages from senders other than the two participants are
// ignored.
func Update(s State, msg core.Message) State {
	var accum *sideAccum
	switch msg.Sender {
	case s.profileA.UserID:
		accum = &s.accumA
	case s.profileB.UserID:
		accum = &s.accumB
	default:
		return s
	}

	// Constant across turns unless profiles change; recomputed for
	// simplicity.
	s.personality = clamp01(CosineSimilarity(s.profileA.Personality.Vector(), s.profileB.Personality.Vector()))

	accum.sentimentSum += msg.Sentiment
	accum.lengthSum += float64(len(msg.Content))
	accum.messages++

	s.flow = flowSentimentWeight*sentimentAlignment(s.accumA, s.accumB) +
		flowLengthWeight*lengthBalance(s.accumA, s.accumB)

	if len(msg.TopicEmbedding) > 0 {
		topic := make([]float64, len(msg.TopicEmbedding))
		copy(topic, msg.TopicEmbedding)
		accum.latestTopic = topic
	}
	// The topic component only moves once both sides have spoken at least
	// one embedded message.
	if len(s.accumA.latestTopic) > 0 && len(s.accumB.latestTopic) > 0 {
		cos := clamp01(CosineSimilarity(s.accumA.latestTopic, s.accumB.latestTopic))
		s.topic = TopicAlpha*cos + (1-TopicAlpha)*s.topic
	}

	scaled := 100 * (WeightPreConversation*s.preConversation +
		WeightPersonality*s.personality +
		WeightFlow*s.flow +
		WeightTopic*s.topic)
	if s.smoothedInit {
		s.smoothed = SmoothingAlpha*scaled + (1-SmoothingAlpha)*s.smoothed
	} else {
		s.smoothed = scaled
		s.smoothedInit = true
	}

	s.messageCount++
	if s.messageCount%trendStride == 0 {
		trend := make([]int, len(s.trend), len(s.trend)+1)
		copy(trend, s.trend)
		s.trend = append(trend, Score(s))
	}
	return s
}

// sentimentAlignment maps the distance between the two mean sentiments onto
// [0,1], falling back to 0.5 until both sides have spoken.
func sentimentAlignment(a, b sideAccum) float64 {
	if a.messages == 0 || b.messages == 0 {
		return flowFallback
	}
	return 1 - math.Abs(a.meanSentiment()-b.meanSentiment())/2
}

// lengthBalance is the ratio of the shorter to the longer mean message
// length, falling back to 0.5 until both sides have spoken.
func lengthBalance(a, b sideAccum) float64 {
	if a.messages == 0 || b.messages == 0 {
		return flowFallback
	}
	meanA, meanB := a.meanLength(), b.meanLength()
	if meanA == 0 || meanB == 0 {
		return flowFallback
	}
	return math.Min(meanA, meanB) / math.Max(meanA, meanB)
}

// Score returns the current smoothed composite as an integer in [0,100].
func Score(s State) int {
	return clampPercent(int(math.Round(s.smoothed)))
}

// Breakdown returns the four components as integer percentages.
func Breakdown(s State) core.ScoreBreakdown {
	return core.ScoreBreakdown{
		PreConversation: toPercent(s.preConversation),
		Personality:     toPercent(s.personality),
		Flow:            toPercent(s.flow),
		Topic:           toPercent(s.topic),
	}
}

// HardConstraintPassed reports the gate computed by PreConversation.
func HardConstraintPassed(s State) bool { return s.hardConstraintPassed }

// Trend returns a copy of the recorded trend samples.
func Trend(s State) []int {
	out := make([]int, len(s.trend))
	copy(out, s.trend)
	return out
}

// Finalize snapshots the state into the terminal result. This is the only
// place a CompatibilityResult is created.
func Finalize(s State, sessionID string, now time.Time) core.CompatibilityResult {
	score := Score(s)
	return core.CompatibilityResult{
		SessionID:            sessionID,
		CompatibilityScore:   score,
		Breakdown:            Breakdown(s),
		HardConstraintPassed: s.hardConstraintPassed,
		TrendOverTime:        Trend(s),
		RecommendMatch:       score >= RecommendThreshold && s.hardConstraintPassed,
		ComputedAt:           now.UTC(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toPercent(frac float64) int {
	return clampPercent(int(math.Round(frac * 100)))
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
