// Package enrich annotates conversation messages with a sentiment score and
// a topic embedding. Both annotations come from the gateway and run
// concurrently; either branch failing degrades that annotation to a neutral
// default instead of failing the message, so the turn loop always receives a
// usable message back.
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/gateway"
	"github.com/hupe1980/duetmatch/logging"
)

// Gateway is the slice of the generation gateway the enricher needs.
// *gateway.Gateway satisfies it.
type Gateway interface {
	GenerateText(ctx context.Context, req gateway.TextRequest) (string, error)
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

var _ Gateway = (*gateway.Gateway)(nil)

const sentimentSystemPrompt = "You rate the emotional sentiment of one chat message. " +
	"Answer with a single bare number between -1 (very negative) and 1 (very positive). " +
	"No words, no explanation, just the number."

// signedDecimalRe extracts the first signed decimal from a reply that did
// not come back as a bare number.
var signedDecimalRe = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// Options configures an Enricher.
type Options struct {
	Logger logging.Logger
}

// Enricher annotates messages via the gateway. Safe for concurrent use.
type Enricher struct {
	gw     Gateway
	logger logging.Logger
}

// New creates an Enricher backed by the given gateway.
func New(gw Gateway, optFns ...func(o *Options)) *Enricher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Enricher{gw: gw, logger: opts.Logger}
}

// Enrich returns a copy of msg with Sentiment, TopicEmbedding and TokenCount
// filled in. The two gateway calls run concurrently; the token estimate is
// computed synchronously. Enrich never returns an error.
func (e *Enricher) Enrich(ctx context.Context, msg core.Message) core.Message {
	msg.TokenCount = core.EstimateTokens(msg.Content)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		msg.Sentiment = e.scoreSentiment(ctx, msg.Content)
	}()
	go func() {
		defer wg.Done()
		msg.TopicEmbedding = e.embedTopic(ctx, msg.Content)
	}()

	wg.Wait()
	return msg
}

// scoreSentiment asks the gateway for a bare number and parses it, clamped
// to [-1,1]. Any failure degrades to the neutral 0.
func (e *Enricher) scoreSentiment(ctx context.Context, content string) float64 {
	reply, err := e.gw.GenerateText(ctx, gateway.TextRequest{
		System:    sentimentSystemPrompt,
		Prompt:    fmt.Sprintf("Message: %q", content),
		CallerTag: "sentiment",
	})
	if err != nil {
		e.logger.Warn("sentiment scoring failed, defaulting to neutral", "error", err)
		return 0
	}
	return ParseSentiment(reply)
}

// embedTopic embeds the content, degrading to an empty vector on failure so
// the scoring engine simply skips the topic update for this message.
func (e *Enricher) embedTopic(ctx context.Context, content string) []float64 {
	vec, err := e.gw.EmbedText(ctx, content)
	if err != nil {
		e.logger.Warn("topic embedding failed, leaving message unembedded", "error", err)
		return nil
	}
	return vec
}

// ParseSentiment turns a model reply into a sentiment in [-1,1]. It tries a
// direct float parse of the trimmed reply, then extraction of the first
// signed decimal, then defaults to 0.
func ParseSentiment(reply string) float64 {
	trimmed := strings.TrimSpace(reply)
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return clampSentiment(v)
	}
	if match := signedDecimalRe.FindString(trimmed); match != "" {
		if v, err := strconv.ParseFloat(match, 64); err == nil {
			return clampSentiment(v)
		}
	}
	return 0
}

func clampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
