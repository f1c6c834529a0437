package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duetmatch/core"
)

func profileA() core.ProfileVector {
	return core.ProfileVector{
		UserID:      "ava",
		Embedding:   []float64{0.6, 0.2, 0.4, 0.7},
		Personality: core.Personality{Openness: 0.8, Conscientiousness: 0.6, Extraversion: 0.7, Agreeableness: 0.8, Neuroticism: 0.3},
		HardFilters: map[string]string{"smoker": "false", "wants_kids": "true"},
	}
}

func profileB() core.ProfileVector {
	return core.ProfileVector{
		UserID:      "ben",
		Embedding:   []float64{0.5, 0.3, 0.4, 0.6},
		Personality: core.Personality{Openness: 0.7, Conscientiousness: 0.7, Extraversion: 0.5, Agreeableness: 0.7, Neuroticism: 0.4},
		HardFilters: map[string]string{"smoker": "false", "wants_kids": "true"},
	}
}

func message(sender, content string, sentiment float64, topic []float64) core.Message {
	return core.Message{
		ID:             core.NewID(),
		SessionID:      "s1",
		Sender:         sender,
		Content:        content,
		Sentiment:      sentiment,
		TopicEmbedding: topic,
	}
}

func TestIdenticalProfilesScoreFullMarks(t *testing.T) {
	a := profileA()
	b := profileA()
	b.UserID = "ben"

	s := PreConversation(NewState(a, b))
	s = Update(s, message("ava", "hello there", 0.2, nil))

	breakdown := Breakdown(s)
	assert.Equal(t, 100, breakdown.PreConversation)
	assert.Equal(t, 100, breakdown.Personality)
}

func TestHardConstraintSharedKeyMismatchFails(t *testing.T) {
	a := profileA()
	b := profileB()
	a.HardFilters = map[string]string{"smoker": "true"}
	b.HardFilters = map[string]string{"smoker": "false"}

	s := PreConversation(NewState(a, b))
	assert.False(t, HardConstraintPassed(s))
}

func TestHardConstraintDisjointKeysIgnored(t *testing.T) {
	a := profileA()
	b := profileB()
	a.HardFilters = map[string]string{"religion": "none"}
	b.HardFilters = map[string]string{"smoker": "false"}

	s := PreConversation(NewState(a, b))
	assert.True(t, HardConstraintPassed(s))
}

func TestHardConstraintEqualMapsPass(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	assert.True(t, HardConstraintPassed(s))
}

func TestHardConstraintDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		s := PreConversation(NewState(profileA(), profileB()))
		assert.True(t, HardConstraintPassed(s))
	}
}

func TestFlowFallbackWhenOnlyOneSideSpoke(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))

	// Only participant A has spoken; both flow sub-terms fall back to 0.5.
	s = Update(s, message("ava", "hello hello hello", 0.9, nil))
	breakdown := Breakdown(s)
	assert.Equal(t, 50, breakdown.Flow)

	score := Score(s)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
}

func TestFlowBothSidesSpoke(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	s = Update(s, message("ava", "aaaaaaaaaa", 0.5, nil)) // len 10
	s = Update(s, message("ben", "bbbbbbbbbb", 0.5, nil)) // len 10

	// Equal sentiment and equal lengths: alignment 1.0, balance 1.0.
	assert.Equal(t, 100, Breakdown(s).Flow)
}

func TestTopicWaitsForBothSides(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	topic := []float64{1, 0, 0}

	s = Update(s, message("ava", "about hiking", 0.1, topic))
	assert.Zero(t, Breakdown(s).Topic)

	s = Update(s, message("ben", "also hiking", 0.1, topic))
	// First movement: 0.4*cos(identical)=0.4.
	assert.Equal(t, 40, Breakdown(s).Topic)

	s = Update(s, message("ava", "more hiking", 0.1, topic))
	// EMA keeps climbing toward 100: 0.4 + 0.6*0.4 = 0.64.
	assert.Equal(t, 64, Breakdown(s).Topic)
}

func TestEmptyTopicEmbeddingIgnored(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	s = Update(s, message("ava", "hi", 0, nil))
	s = Update(s, message("ben", "hi", 0, nil))
	assert.Zero(t, Breakdown(s).Topic)
}

func TestSmoothedScoreConvergesMonotonically(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))

	// Identical constant messages from both sides produce a constant raw
	// composite; the smoothed score must approach it monotonically and
	// never overshoot.
	var prev float64
	var prevSet bool
	senders := []string{"ava", "ben"}
	for i := 0; i < 40; i++ {
		s = Update(s, message(senders[i%2], "steady message content", 0.4, []float64{0.5, 0.5}))
		if i < 2 {
			// Raw stabilizes once both sides have spoken.
			prev = s.smoothed
			prevSet = true
			continue
		}
		require.True(t, prevSet)
		assert.GreaterOrEqual(t, s.smoothed+1e-9, prev, "smoothed regressed at step %d", i)
		prev = s.smoothed
	}
	assert.LessOrEqual(t, s.smoothed, 100.0)
}

func TestScoreAndBreakdownBounded(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	senders := []string{"ava", "ben"}
	for i := 0; i < 20; i++ {
		sentiment := -1.0
		if i%2 == 0 {
			sentiment = 1.0
		}
		s = Update(s, message(senders[i%2], "some message", sentiment, []float64{0.1, 0.9}))

		score := Score(s)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
		for _, component := range []int{Breakdown(s).PreConversation, Breakdown(s).Personality, Breakdown(s).Flow, Breakdown(s).Topic} {
			assert.GreaterOrEqual(t, component, 0)
			assert.LessOrEqual(t, component, 100)
		}
	}
}

func TestTrendSampledEverySecondMessage(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	senders := []string{"ava", "ben"}
	for i := 0; i < 7; i++ {
		s = Update(s, message(senders[i%2], "msg", 0.2, nil))
	}
	assert.Len(t, Trend(s), 3)
}

func TestUpdateIgnoresUnknownSenders(t *testing.T) {
	s := PreConversation(NewState(profileA(), profileB()))
	before := Score(s)
	s = Update(s, message(core.SystemSender, "system notice", 0.9, []float64{1}))
	assert.Equal(t, before, Score(s))
	assert.Empty(t, Trend(s))
}

func TestUpdateDoesNotMutateInput(t *testing.T) {
	s0 := PreConversation(NewState(profileA(), profileB()))
	s1 := Update(s0, message("ava", "hello", 0.5, []float64{1, 0}))
	s2 := Update(s1, message("ben", "world", 0.5, []float64{0, 1}))

	// The earlier states keep their own accumulators and trend.
	assert.Empty(t, Trend(s0))
	assert.Empty(t, Trend(s1))
	assert.Len(t, Trend(s2), 1)
	assert.Zero(t, s0.accumA.messages)
	assert.Equal(t, 1, s1.accumA.messages)
}

func TestFinalizeRecommendation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 3, 0, 0, time.UTC)

	// High-scoring session with passing hard constraints.
	a := profileA()
	b := profileA()
	b.UserID = "ben"
	s := PreConversation(NewState(a, b))
	senders := []string{"ava", "ben"}
	for i := 0; i < 30; i++ {
		s = Update(s, message(senders[i%2], "lovely chat indeed", 0.8, []float64{0.7, 0.7}))
	}
	result := Finalize(s, "s1", now)
	assert.Equal(t, "s1", result.SessionID)
	assert.True(t, result.HardConstraintPassed)
	assert.GreaterOrEqual(t, result.CompatibilityScore, RecommendThreshold)
	assert.True(t, result.RecommendMatch)
	assert.Equal(t, now, result.ComputedAt)
	assert.NotEmpty(t, result.TrendOverTime)
}

func TestFinalizeHardConstraintVetoesRecommendation(t *testing.T) {
	a := profileA()
	b := profileA()
	b.UserID = "ben"
	a.HardFilters = map[string]string{"smoker": "true"}
	b.HardFilters = map[string]string{"smoker": "false"}

	s := PreConversation(NewState(a, b))
	senders := []string{"ava", "ben"}
	for i := 0; i < 30; i++ {
		s = Update(s, message(senders[i%2], "wonderful conversation", 0.9, []float64{0.7, 0.7}))
	}

	result := Finalize(s, "s1", time.Now())
	// Score is high, but the failed gate vetoes the recommendation.
	assert.GreaterOrEqual(t, result.CompatibilityScore, RecommendThreshold)
	assert.False(t, result.HardConstraintPassed)
	assert.False(t, result.RecommendMatch)
}
