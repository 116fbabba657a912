package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Inbound media stream events.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
)

// Custom parameter names set by the TwiML answer.
const (
	ParamCustomerPhone = "customer_phone"
	ParamAddress       = "address"
)

// MediaFormat describes the stream encoding announced on start.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Start is the payload of a start event.
type Start struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

// Media is one inbound audio chunk; Payload is base64 μ-law.
type Media struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// Mark echoes a mark we sent once playback reaches it.
type Mark struct {
	Name string `json:"name"`
}

// Frame is one inbound media stream message.
type Frame struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber"`
	StreamSid      string `json:"streamSid"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
}

// DecodeFrame parses one text frame from the media stream socket.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("telephony: decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("telephony: frame without event")
	}
	return f, nil
}

// CustomParameter returns a start custom parameter, or "".
func (f Frame) CustomParameter(name string) string {
	if f.Start == nil || f.Start.CustomParameters == nil {
		return ""
	}
	return f.Start.CustomParameters[name]
}

type outboundMedia struct {
	Payload string `json:"payload"`
	Track   string `json:"track,omitempty"`
}

// MediaMessage plays base64 μ-law audio to the caller.
type MediaMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Media     outboundMedia `json:"media"`
}

// ClearMessage drops audio buffered for playback.
type ClearMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// MarkMessage asks for a mark event once preceding audio has played.
type MarkMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Mark      Mark   `json:"mark"`
}

func NewMedia(streamSid, payload string) MediaMessage {
	return MediaMessage{Event: EventMedia, StreamSid: streamSid, Media: outboundMedia{Payload: payload, Track: "outbound"}}
}

// NewMediaBytes encodes raw μ-law bytes.
func NewMediaBytes(streamSid string, mulaw []byte) MediaMessage {
	return NewMedia(streamSid, base64.StdEncoding.EncodeToString(mulaw))
}

func NewClear(streamSid string) ClearMessage {
	return ClearMessage{Event: "clear", StreamSid: streamSid}
}

func NewMark(streamSid, name string) MarkMessage {
	return MarkMessage{Event: EventMark, StreamSid: streamSid, Mark: Mark{Name: name}}
}
