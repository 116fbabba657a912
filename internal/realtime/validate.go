package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValidationError reports a negotiated session field that differs from what we asked for.
type ValidationError struct {
	Schema Schema
	Field  string
	Want   string
	Got    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("realtime: %s session mismatch on %s: want %q, got %q", e.Schema, e.Field, e.Want, e.Got)
}

type negotiatedFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate"`
}

type negotiatedSession struct {
	InputAudioFormat        string `json:"input_audio_format"`
	OutputAudioFormat       string `json:"output_audio_format"`
	InputAudioTranscription *struct {
		Model string `json:"model"`
	} `json:"input_audio_transcription"`
	Audio *struct {
		Input *struct {
			Format        *negotiatedFormat `json:"format"`
			Transcription *struct {
				Model string `json:"model"`
			} `json:"transcription"`
		} `json:"input"`
		Output *struct {
			Format *negotiatedFormat `json:"format"`
		} `json:"output"`
	} `json:"audio"`
}

// ValidateSession checks the session object of a session.updated event against cfg.
// Audio formats and the transcription model must match exactly.
func ValidateSession(cfg SessionConfig, raw json.RawMessage) error {
	if len(raw) == 0 {
		return &ValidationError{Schema: cfg.Schema, Field: "session", Want: "object", Got: "missing"}
	}
	var s negotiatedSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("realtime: decode session: %w", err)
	}
	mismatch := func(field, want, got string) error {
		if want == got {
			return nil
		}
		return &ValidationError{Schema: cfg.Schema, Field: field, Want: want, Got: got}
	}

	if cfg.Schema == SchemaAudio {
		var in, out negotiatedFormat
		var model string
		if s.Audio != nil && s.Audio.Input != nil {
			if s.Audio.Input.Format != nil {
				in = *s.Audio.Input.Format
			}
			if s.Audio.Input.Transcription != nil {
				model = s.Audio.Input.Transcription.Model
			}
		}
		if s.Audio != nil && s.Audio.Output != nil && s.Audio.Output.Format != nil {
			out = *s.Audio.Output.Format
		}
		want := cfg.audioFormat()
		checks := []error{
			mismatch("audio.input.format.type", want.Type, in.Type),
			mismatch("audio.input.format.rate", strconv.Itoa(want.Rate), strconv.Itoa(in.Rate)),
			mismatch("audio.output.format.type", want.Type, out.Type),
			mismatch("audio.output.format.rate", strconv.Itoa(want.Rate), strconv.Itoa(out.Rate)),
			mismatch("audio.input.transcription.model", cfg.TranscriptionModel, model),
		}
		return firstErr(checks)
	}

	var model string
	if s.InputAudioTranscription != nil {
		model = s.InputAudioTranscription.Model
	}
	return firstErr([]error{
		mismatch("input_audio_format", cfg.FormatName(), s.InputAudioFormat),
		mismatch("output_audio_format", cfg.FormatName(), s.OutputAudioFormat),
		mismatch("input_audio_transcription.model", cfg.TranscriptionModel, model),
	})
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
