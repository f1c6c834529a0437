package persona

import (
	"context"

	"github.com/hupe1980/duetmatch/core"
)

// demoLines are the canned replies cycled by the scripted demo participant.
var demoLines = []string{
	"I spent last weekend hiking up in the hills, the view at the top was worth every step.",
	"Lately I've been getting really into cooking, mostly italian food. Do you cook at all?",
	"I have to admit I'm a big podcast person, I listen on my commute every day.",
	"Travel is my thing. I'm saving up for a trip to Japan next spring!",
	"Honestly, a quiet evening with a good book beats a loud party for me most days.",
	"I volunteer at an animal shelter on Saturdays, it keeps me grounded.",
}

// demoWrapLine is the scripted closing impression used during the wrap
// phase.
const demoWrapLine = "This was really fun, I enjoyed talking with you. I'd love to do it again sometime!"

// ScriptedAgent replays canned lines instead of calling the gateway. It
// backs the reserved demo participant so sessions can run without any
// provider credentials, and doubles as a deterministic stand-in for tests.
type ScriptedAgent struct {
	profile core.ProfileVector
	lines   []string
	next    int
}

// NewScripted creates a scripted agent for a profile. With no lines given it
// uses the built-in demo script.
func NewScripted(profile core.ProfileVector, lines ...string) *ScriptedAgent {
	if len(lines) == 0 {
		lines = demoLines
	}
	return &ScriptedAgent{profile: profile, lines: lines}
}

// ID returns the participant id this agent speaks for.
func (s *ScriptedAgent) ID() string { return s.profile.UserID }

// Opener returns the scripted first line.
func (s *ScriptedAgent) Opener() string {
	if s.profile.OpeningLine != "" {
		return s.profile.OpeningLine
	}
	return defaultOpener
}

// Observe is a no-op; a scripted agent ignores the conversation.
func (s *ScriptedAgent) Observe(core.Message) {}

// GenerateResponse cycles through the canned lines, switching to a closing
// line once the wrap phase begins.
func (s *ScriptedAgent) GenerateResponse(_ context.Context, _ string, phase core.State) string {
	if phase == core.StateWrap {
		return demoWrapLine
	}
	line := s.lines[s.next%len(s.lines)]
	s.next++
	return line
}
