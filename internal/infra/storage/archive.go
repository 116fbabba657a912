package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Turn is one line of a call transcript.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Transcript is the end-of-call archive document.
type Transcript struct {
	CallID     string    `json:"call_id"`
	CallSid    string    `json:"call_sid,omitempty"`
	StreamSid  string    `json:"stream_sid,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Status     string    `json:"status"`
	FinalState string    `json:"final_state"`
	OrderID    string    `json:"order_id,omitempty"`
	Turns      []Turn    `json:"turns"`
}

// ObjectKey is where the archive lands: transcripts/<yyyy>/<mm>/<dd>/<call>.json.
func (t Transcript) ObjectKey() string {
	day := t.StartedAt.UTC()
	name := t.CallSid
	if name == "" {
		name = t.CallID
	}
	return fmt.Sprintf("transcripts/%04d/%02d/%02d/%s.json", day.Year(), day.Month(), day.Day(), name)
}

// ArchiveTranscript serialises t and uploads it.
func ArchiveTranscript(ctx context.Context, u Uploader, t Transcript) (string, error) {
	if u == nil {
		return "", ErrNotConfigured
	}
	body, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: encode transcript: %w", err)
	}
	key := t.ObjectKey()
	if err := u.Upload(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}
