package barge

import (
	"strings"
	"time"

	"github.com/chadiek/rice-call-gateway/internal/extract"
)

const minEchoRunes = 4

// EchoFilter drops transcripts that are the assistant's own audio coming
// back through the phone line.
type EchoFilter struct {
	Cooldown time.Duration
	Window   time.Duration

	now        func() time.Time
	lastPrompt string
	lastDoneAt time.Time
}

func NewEchoFilter(cooldown, window time.Duration) *EchoFilter {
	return &EchoFilter{Cooldown: cooldown, Window: window, now: time.Now}
}

// NotePrompt remembers the text the assistant was asked to say.
func (f *EchoFilter) NotePrompt(text string) {
	f.lastPrompt = extract.NormalizeForCompare(text)
}

// NoteAssistantDone marks the end of assistant playback.
func (f *EchoFilter) NoteAssistantDone() { f.lastDoneAt = f.now() }

// Check returns a non-empty reason when the transcript should be discarded.
func (f *EchoFilter) Check(transcript string) string {
	if f.lastDoneAt.IsZero() {
		return ""
	}
	since := f.now().Sub(f.lastDoneAt)
	if since < f.Cooldown {
		return "cooldown"
	}
	if f.lastPrompt == "" || since >= f.Window {
		return ""
	}
	t := extract.NormalizeForCompare(transcript)
	if len([]rune(t)) < minEchoRunes {
		return ""
	}
	if strings.Contains(f.lastPrompt, t) || strings.Contains(t, f.lastPrompt) {
		return "echo"
	}
	return ""
}
