package persona

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/gateway"
	"github.com/hupe1980/duetmatch/logging"
)

// Generator is the slice of the gateway an Agent needs. *gateway.Gateway
// satisfies it.
type Generator interface {
	GenerateText(ctx context.Context, req gateway.TextRequest) (string, error)
}

// Compile time check to ensure Generator stays aligned with the gateway.
var _ Generator = (*gateway.Gateway)(nil)

const (
	// DefaultHistoryLimit bounds the in-memory message window fed into each
	// prompt.
	DefaultHistoryLimit = 10
	// DefaultTemperature keeps replies varied without drifting off-persona.
	DefaultTemperature = 0.8

	// fillerLine is returned whenever generation fails, so the turn loop is
	// never blocked by a single bad call.
	fillerLine = "That's really interesting, tell me more about that!"
	// defaultOpener is used when the profile does not carry an opening line.
	defaultOpener = "Hi! It's nice to meet you, how is your day going?"
	// maxSentences bounds post-processed replies.
	maxSentences = 2
)

// roleLabelRe matches a short leading "Name:" style label echoed by the
// model.
var roleLabelRe = regexp.MustCompile(`^[\p{L}][\p{L}\p{N} _.'-]{0,24}:\s*`)

// Options configures an Agent.
type Options struct {
	HistoryLimit int
	Temperature  float64
	Logger       logging.Logger
}

// Agent speaks as one participant. It is owned by a single orchestrator and
// is not safe for concurrent use; the turn scheduler serializes all calls.
type Agent struct {
	profile core.ProfileVector
	summary string
	gen     Generator
	opts    Options
	history []core.Message
}

// New creates an Agent for a participant profile. The summary is a short
// textual self-description embedded into every system prompt; when empty,
// the profile's own summary is used.
func New(profile core.ProfileVector, summary string, gen Generator, optFns ...func(o *Options)) *Agent {
	opts := Options{
		HistoryLimit: DefaultHistoryLimit,
		Temperature:  DefaultTemperature,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if summary == "" {
		summary = profile.Summary
	}

	return &Agent{
		profile: profile,
		summary: summary,
		gen:     gen,
		opts:    opts,
	}
}

// ID returns the participant id this agent speaks for.
func (a *Agent) ID() string { return a.profile.UserID }

// Opener returns the scripted first line, bypassing generation entirely.
func (a *Agent) Opener() string {
	if a.profile.OpeningLine != "" {
		return a.profile.OpeningLine
	}
	return defaultOpener
}

// Observe records a message into the bounded history window. Both the
// agent's own utterances and the other party's are observed, so the window
// reads as a dialogue transcript.
func (a *Agent) Observe(msg core.Message) {
	a.history = append(a.history, msg)
	if len(a.history) > a.opts.HistoryLimit {
		a.history = a.history[len(a.history)-a.opts.HistoryLimit:]
	}
}

// GenerateResponse produces the agent's reply to the other party's latest
// message. phase selects between the live and wrap-up prompt variants. Any
// generation failure is absorbed into a fixed filler line; this method never
// returns an error.
func (a *Agent) GenerateResponse(ctx context.Context, incoming string, phase core.State) string {
	text, err := a.gen.GenerateText(ctx, gateway.TextRequest{
		System:      a.buildSystemPrompt(phase),
		Prompt:      a.buildTranscript(incoming),
		Temperature: a.opts.Temperature,
		CallerTag:   "persona",
	})
	if err != nil {
		a.opts.Logger.Warn("persona generation failed, using filler line", "participant", a.profile.UserID, "error", err)
		return fillerLine
	}

	reply := sanitizeReply(text)
	if reply == "" {
		return fillerLine
	}
	return reply
}

func (a *Agent) buildSystemPrompt(phase core.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, on a first virtual date in a chat conversation.\n\n", a.displayName())
	fmt.Fprintf(&b, "About you:\n%s\n\n", a.summary)
	b.WriteString("Stay in character. Reply with one short, natural chat message of at most two sentences. ")
	b.WriteString("Never prefix your reply with your name and never use quotation marks around it.")
	if phase == core.StateWrap {
		b.WriteString("\n\nThe date is almost over. Give a warm closing impression of the conversation and of the other person.")
	}
	return b.String()
}

// buildTranscript formats the recent window plus the incoming message as a
// short dialogue and asks for the next line.
func (a *Agent) buildTranscript(incoming string) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, msg := range a.history {
		b.WriteString(a.speakerLabel(msg.Sender))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteByte('\n')
	}
	if incoming != "" {
		b.WriteString("Them: ")
		b.WriteString(incoming)
		b.WriteByte('\n')
	}
	b.WriteString("You:")
	return b.String()
}

func (a *Agent) speakerLabel(sender string) string {
	if sender == a.profile.UserID {
		return "You"
	}
	return "Them"
}

func (a *Agent) displayName() string {
	if a.profile.DisplayName != "" {
		return a.profile.DisplayName
	}
	return a.profile.UserID
}

// sanitizeReply strips an echoed leading role label and wrapping quotes and
// truncates to the first two sentences.
func sanitizeReply(text string) string {
	s := strings.TrimSpace(text)
	s = roleLabelRe.ReplaceAllString(s, "")
	s = stripWrappingQuotes(s)
	s = truncateSentences(s, maxSentences)
	return strings.TrimSpace(s)
}

func stripWrappingQuotes(s string) string {
	pairs := [][2]string{
		{`"`, `"`},
		{"'", "'"},
		{"“", "”"},
		{"‘", "’"},
	}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}

// truncateSentences keeps at most max sentences, splitting on '.', '?' and
// '!' while keeping the terminator.
func truncateSentences(s string, max int) string {
	count := 0
	for i, r := range s {
		switch r {
		case '.', '?', '!':
			count++
			if count == max {
				return s[:i+utf8.RuneLen(r)]
			}
		}
	}
	return s
}
