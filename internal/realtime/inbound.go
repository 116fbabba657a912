package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outbound event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
	TypeAudioAppend            = "input_audio_buffer.append"
	TypeAudioCommit            = "input_audio_buffer.commit"
	TypeItemRetrieve           = "conversation.item.retrieve"
)

// Inbound event types.
const (
	TypeError                   = "error"
	TypeSessionCreated          = "session.created"
	TypeSessionUpdated          = "session.updated"
	TypeSpeechStarted           = "input_audio_buffer.speech_started"
	TypeSpeechStopped           = "input_audio_buffer.speech_stopped"
	TypeCommitted               = "input_audio_buffer.committed"
	TypeTranscriptionCompleted  = "input_audio_transcription.completed"
	TypeItemTranscription       = "conversation.item.input_audio_transcription.completed"
	TypeItemAdded               = "conversation.item.added"
	TypeItemCreated             = "conversation.item.created"
	TypeItemRetrieved           = "conversation.item.retrieved"
	TypeResponseCreated         = "response.created"
	TypeResponseDone            = "response.done"
	TypeResponseCancelled       = "response.cancelled"
	TypeOutputItemAdded         = "response.output_item.added"
	TypeOutputAudioDelta        = "response.output_audio.delta"
	TypeAudioDelta              = "response.audio.delta"
	TypeOutputAudioBuffer       = "output_audio_buffer.audio"
	TypeContentPartAdded        = "response.content_part.added"
	TypeOutputTranscriptDelta   = "response.output_audio_transcript.delta"
	TypeAudioTranscriptDelta    = "response.audio_transcript.delta"
	TypeOutputTranscriptDone    = "response.output_audio_transcript.done"
	TypeAudioTranscriptDone     = "response.audio_transcript.done"
	TypeBinary                  = "binary"
	ErrCodeActiveResponseExists = "conversation_already_has_active_response"
)

// APIError is the body of an error event.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the response object carried by response.* events.
type Response struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type inboundPart struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Value      any    `json:"value"`
	Transcript string `json:"transcript"`
}

// InboundItem is a conversation item echoed by the server.
type InboundItem struct {
	ID      string        `json:"id"`
	Role    string        `json:"role"`
	Content []inboundPart `json:"content"`
}

// Event is one decoded server frame. Binary frames carry raw audio in Binary.
type Event struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id"`
	ResponseID string          `json:"response_id"`
	ItemID     string          `json:"item_id"`
	Delta      string          `json:"delta"`
	Audio      string          `json:"audio"`
	Transcript string          `json:"transcript"`
	Text       string          `json:"text"`
	Confidence *float64        `json:"confidence"`
	Response   *Response       `json:"response"`
	Item       *InboundItem    `json:"item"`
	Part       json.RawMessage `json:"part"`
	Error      *APIError       `json:"error"`
	Session    json.RawMessage `json:"session"`

	Binary []byte `json:"-"`
}

var errMissingType = errors.New("realtime: event missing type")

// Decode parses a text frame. The type is read first so an event with an
// unexpected body still reports what it was.
func Decode(data []byte) (Event, error) {
	var base map[string]any
	if err := json.Unmarshal(data, &base); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	typ, ok := base["type"].(string)
	if !ok || typ == "" {
		return Event{}, errMissingType
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{Type: typ}, fmt.Errorf("realtime: decode %s: %w", typ, err)
	}
	return ev, nil
}

// ID returns the response id, whichever field carries it.
func (e Event) ID() string {
	if e.Response != nil && e.Response.ID != "" {
		return e.Response.ID
	}
	return e.ResponseID
}

// RequestID is the request id we attached to response.create, if echoed back.
func (e Event) RequestID() string {
	if e.Response == nil || e.Response.Metadata == nil {
		return ""
	}
	v, _ := e.Response.Metadata[RequestIDKey].(string)
	return v
}

// ErrorCode returns the error code of an error event.
func (e Event) ErrorCode() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

// UserTranscript extracts a caller transcript from any of the events that carry one.
// confidence is nil unless the server reported it.
func (e Event) UserTranscript() (text string, confidence *float64, ok bool) {
	switch e.Type {
	case TypeTranscriptionCompleted:
		text = firstNonBlank(e.Transcript, e.Text)
		return text, e.Confidence, text != ""
	case TypeItemTranscription:
		text = firstNonBlank(e.Transcript, e.Text)
		return text, nil, text != ""
	case TypeItemAdded, TypeItemCreated:
		if e.Item == nil || e.Item.Role != "user" {
			return "", nil, false
		}
		text = e.Item.contentText()
		return text, nil, text != ""
	}
	return "", nil, false
}

func (it InboundItem) contentText() string {
	for _, p := range it.Content {
		switch p.Type {
		case "input_text", "text":
			if strings.TrimSpace(p.Text) != "" {
				return p.Text
			}
			if s, ok := p.Value.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		case "audio", "input_audio":
			if strings.TrimSpace(p.Transcript) != "" {
				return p.Transcript
			}
		}
	}
	return ""
}

// AudioPayload returns base64 assistant audio carried by the event.
func (e Event) AudioPayload() (string, bool) {
	switch e.Type {
	case TypeOutputAudioDelta, TypeAudioDelta:
		return e.Delta, e.Delta != ""
	case TypeOutputAudioBuffer:
		return e.Audio, e.Audio != ""
	case TypeContentPartAdded:
		return partAudio(e.Part)
	}
	return "", false
}

func partAudio(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var part struct {
		Audio json.RawMessage `json:"audio"`
	}
	if err := json.Unmarshal(raw, &part); err != nil || len(part.Audio) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(part.Audio, &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(part.Audio, &obj); err == nil {
		return obj.Data, obj.Data != ""
	}
	return "", false
}

// AssistantTranscriptDelta returns the text of an assistant transcript delta.
func (e Event) AssistantTranscriptDelta() (string, bool) {
	if e.Type != TypeOutputTranscriptDelta && e.Type != TypeAudioTranscriptDelta {
		return "", false
	}
	s := e.Delta
	if s == "" {
		s = e.Transcript
	}
	if s == "" {
		s = e.Text
	}
	return s, s != ""
}

// AssistantTranscriptDone reports a finished assistant transcript.
func (e Event) AssistantTranscriptDone() bool {
	return e.Type == TypeOutputTranscriptDone || e.Type == TypeAudioTranscriptDone
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
