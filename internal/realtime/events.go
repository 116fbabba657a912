package realtime

import (
	"fmt"

	"github.com/chadiek/rice-call-gateway/internal/audio"
)

// Schema selects the session-config shape the model endpoint speaks.
type Schema string

const (
	SchemaFlat  Schema = "flat"
	SchemaAudio Schema = "audio"
)

// RequestIDKey is the response.metadata key carrying our request id.
const RequestIDKey = "request_id"

// SessionConfig is what we ask the model session to be.
type SessionConfig struct {
	Schema             Schema
	Encoding           audio.Encoding
	Rate               int // model-side rate for pcm16; pcmu is always 8kHz
	TranscriptionModel string
	Voice              string
	Instructions       string
	VAD                bool
	VADSilenceMs       int
	InterruptResponse  bool
}

// ModelRate is the sample rate of audio exchanged with the model.
func (c SessionConfig) ModelRate() int {
	if c.Encoding == audio.EncodingPCMU || c.Rate <= 0 {
		return audio.TwilioSampleRate
	}
	return c.Rate
}

// FormatName is the audio format identifier for the configured schema.
func (c SessionConfig) FormatName() string {
	if c.Schema == SchemaAudio {
		if c.Encoding == audio.EncodingPCMU {
			return "audio/pcmu"
		}
		return "audio/pcm"
	}
	if c.Encoding == audio.EncodingPCMU {
		return "g711_ulaw"
	}
	return "pcm16"
}

// Describe renders the pipeline the way the call log line shows it.
func (c SessionConfig) Describe() string {
	if c.Schema == SchemaAudio {
		return fmt.Sprintf("%s@%d", c.FormatName(), c.ModelRate())
	}
	return c.FormatName()
}

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string `json:"type"`
	SilenceDurationMs int    `json:"silence_duration_ms"`
	CreateResponse    bool   `json:"create_response"`
	InterruptResponse bool   `json:"interrupt_response"`
}

type audioFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate,omitempty"`
}

type audioInput struct {
	Format        audioFormat    `json:"format"`
	Transcription *transcription `json:"transcription"`
	TurnDetection *turnDetection `json:"turn_detection"`
}

type audioOutput struct {
	Format audioFormat `json:"format"`
	Voice  string      `json:"voice,omitempty"`
}

type audioConfig struct {
	Input  audioInput  `json:"input"`
	Output audioOutput `json:"output"`
}

type flatSession struct {
	Instructions            string         `json:"instructions,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	Voice                   string         `json:"voice,omitempty"`
	Modalities              []string       `json:"modalities"`
	InputAudioTranscription *transcription `json:"input_audio_transcription"`
	TurnDetection           *turnDetection `json:"turn_detection"`
}

type audioSession struct {
	Type             string      `json:"type"`
	Instructions     string      `json:"instructions,omitempty"`
	Audio            audioConfig `json:"audio"`
	OutputModalities []string    `json:"output_modalities"`
}

// SessionUpdate is the session.update event.
type SessionUpdate struct {
	Type    string `json:"type"`
	Session any    `json:"session"`
}

// ContentPart is one piece of a conversation item.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Item is an outbound conversation item.
type Item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ConversationItemCreate is the conversation.item.create event.
type ConversationItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

type responseAudio struct {
	Output audioOutput `json:"output"`
}

// ResponseConfig is the response body of response.create.
type ResponseConfig struct {
	Modalities        []string          `json:"modalities,omitempty"`
	OutputAudioFormat string            `json:"output_audio_format,omitempty"`
	Voice             string            `json:"voice,omitempty"`
	Audio             *responseAudio    `json:"audio,omitempty"`
	Instructions      string            `json:"instructions,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ResponseCreate is the response.create event.
type ResponseCreate struct {
	Type     string         `json:"type"`
	Response ResponseConfig `json:"response"`
}

// ResponseCancel is the response.cancel event.
type ResponseCancel struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
}

// AudioAppend is the input_audio_buffer.append event.
type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// AudioCommit is the input_audio_buffer.commit event.
type AudioCommit struct {
	Type string `json:"type"`
}

// ItemRetrieve is the conversation.item.retrieve event.
type ItemRetrieve struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
}

func (c SessionConfig) turnDetection() *turnDetection {
	if !c.VAD {
		return nil
	}
	return &turnDetection{
		Type:              "server_vad",
		SilenceDurationMs: c.VADSilenceMs,
		CreateResponse:    false,
		InterruptResponse: c.InterruptResponse,
	}
}

func (c SessionConfig) audioFormat() audioFormat {
	return audioFormat{Type: c.FormatName(), Rate: c.ModelRate()}
}

// NewSessionUpdate builds session.update for the configured schema.
// Server VAD never creates responses on its own; every response is ours.
func NewSessionUpdate(c SessionConfig) SessionUpdate {
	if c.Schema == SchemaAudio {
		return SessionUpdate{
			Type: TypeSessionUpdate,
			Session: audioSession{
				Type:         "realtime",
				Instructions: c.Instructions,
				Audio: audioConfig{
					Input: audioInput{
						Format:        c.audioFormat(),
						Transcription: &transcription{Model: c.TranscriptionModel},
						TurnDetection: c.turnDetection(),
					},
					Output: audioOutput{Format: c.audioFormat(), Voice: c.Voice},
				},
				OutputModalities: []string{"audio"},
			},
		}
	}
	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: flatSession{
			Instructions:            c.Instructions,
			InputAudioFormat:        c.FormatName(),
			OutputAudioFormat:       c.FormatName(),
			Voice:                   c.Voice,
			Modalities:              []string{"audio", "text"},
			InputAudioTranscription: &transcription{Model: c.TranscriptionModel},
			TurnDetection:           c.turnDetection(),
		},
	}
}

const (
	verbatimPreamble    = "次の文章を一字一句そのまま読み上げてください。言い換え・追加・省略はしないでください。"
	verbatimInstruction = "直前のメッセージの「」内の文章だけを、そのまま読み上げてください。"
)

// NewVerbatimItem inserts the text the assistant must say into the conversation.
func NewVerbatimItem(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: Item{
			Type: "message",
			Role: "system",
			Content: []ContentPart{
				{Type: "input_text", Text: verbatimPreamble + "\n「" + text + "」"},
			},
		},
	}
}

// NewResponseCreate asks the model to render the verbatim item. requestID is
// echoed back in response.created so the engine can tell its own responses apart.
func NewResponseCreate(c SessionConfig, text, requestID string) ResponseCreate {
	rc := ResponseConfig{
		Instructions: verbatimInstruction + "\n「" + text + "」",
		Metadata:     map[string]string{RequestIDKey: requestID},
	}
	if c.Schema == SchemaAudio {
		rc.Audio = &responseAudio{Output: audioOutput{Format: c.audioFormat(), Voice: c.Voice}}
	} else {
		rc.Modalities = []string{"audio", "text"}
		rc.OutputAudioFormat = c.FormatName()
		rc.Voice = c.Voice
	}
	return ResponseCreate{Type: TypeResponseCreate, Response: rc}
}

func NewResponseCancel(responseID string) ResponseCancel {
	return ResponseCancel{Type: TypeResponseCancel, ResponseID: responseID}
}

func NewAudioAppend(b64 string) AudioAppend { return AudioAppend{Type: TypeAudioAppend, Audio: b64} }

func NewAudioCommit() AudioCommit { return AudioCommit{Type: TypeAudioCommit} }

func NewItemRetrieve(itemID string) ItemRetrieve {
	return ItemRetrieve{Type: TypeItemRetrieve, ItemID: itemID}
}
