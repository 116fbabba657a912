package session

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/rice-call-gateway/internal/barge"
	"github.com/chadiek/rice-call-gateway/internal/calllog"
	"github.com/chadiek/rice-call-gateway/internal/catalog"
	"github.com/chadiek/rice-call-gateway/internal/conversation"
	"github.com/chadiek/rice-call-gateway/internal/infra/storage"
	"github.com/chadiek/rice-call-gateway/internal/metrics"
	"github.com/chadiek/rice-call-gateway/internal/realtime"
)

// ErrNoTranscriptionModel is returned by Serve when no transcription model is configured.
var ErrNoTranscriptionModel = errors.New("session: REALTIME_TRANSCRIPTION_MODEL is required")

// Config tunes one call.
type Config struct {
	Realtime     realtime.DialOptions
	Session      realtime.SessionConfig
	Conversation conversation.Config
	Barge        barge.Config

	CommitGrace  time.Duration // wait for a transcript after a commit
	CommitFrames int           // manual commit cadence when server VAD is off
	EchoCooldown time.Duration
	EchoWindow   time.Duration

	TestPrompt    string // spoken when a prompt comes through empty
	TestTone      bool   // beep to the caller when the stream starts
	HangupOnClose bool

	LogTimeout     time.Duration
	ArchiveTimeout time.Duration
	HangupTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Conversation:   conversation.DefaultConfig(),
		Barge:          barge.DefaultConfig(),
		CommitGrace:    2 * time.Second,
		CommitFrames:   10,
		EchoCooldown:   800 * time.Millisecond,
		EchoWindow:     3 * time.Second,
		HangupOnClose:  true,
		LogTimeout:     3 * time.Second,
		ArchiveTimeout: 10 * time.Second,
		HangupTimeout:  5 * time.Second,
	}
}

// Hangupper completes a live call.
type Hangupper interface {
	Hangup(ctx context.Context, callSid string) error
}

// Deps are the collaborators shared by every call. All of them may be nil
// except Tools, which falls back to an unconfigured client.
type Deps struct {
	Catalog *catalog.Catalog
	Tools   conversation.ToolClient
	Store   calllog.Store
	Archive storage.Uploader
	Calls   Hangupper
	Metrics *metrics.Metrics
}

// TelephonyConn is the media stream socket. *websocket.Conn satisfies it.
type TelephonyConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}
