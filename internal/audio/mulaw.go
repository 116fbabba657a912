package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"
)

// TwilioSampleRate is the fixed rate of the telephony leg.
const TwilioSampleRate = 8000

// Encoding names the audio representation used on the model leg.
type Encoding string

const (
	EncodingPCMU  Encoding = "pcmu"
	EncodingPCM16 Encoding = "pcm16"
)

// G.711 constants for 16-bit linear input.
const (
	muLawBias = 0x84
	muLawClip = 32635
)

// DecodeMuLawSample expands one μ-law byte to a linear sample.
func DecodeMuLawSample(v byte) int16 {
	mu := ^v
	exponent := (mu >> 4) & 0x07
	mantissa := mu & 0x0f
	magnitude := ((int32(mantissa) << 3) + muLawBias) << exponent
	magnitude -= muLawBias
	if mu&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// EncodeMuLawSample compresses one linear sample to μ-law.
func EncodeMuLawSample(sample int16) byte {
	pcm := int32(sample)
	var sign int32
	if pcm < 0 {
		sign = 0x80
		pcm = -pcm
	}
	if pcm > muLawClip {
		pcm = muLawClip
	}
	pcm += muLawBias
	exponent := int32(7)
	for mask := int32(0x4000); pcm&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (pcm >> (exponent + 3)) & 0x0f
	return ^byte(sign | exponent<<4 | mantissa)
}

// DecodeMuLaw expands a μ-law buffer.
func DecodeMuLaw(in []byte) []int16 {
	out := make([]int16, len(in))
	for i, b := range in {
		out[i] = DecodeMuLawSample(b)
	}
	return out
}

// EncodeMuLaw compresses linear samples to μ-law.
func EncodeMuLaw(in []int16) []byte {
	out := make([]byte, len(in))
	for i, s := range in {
		out[i] = EncodeMuLawSample(s)
	}
	return out
}

// Upsample repeats every sample factor times. factor <= 1 returns the input.
func Upsample(in []int16, factor int) []int16 {
	if factor <= 1 {
		return in
	}
	out := make([]int16, 0, len(in)*factor)
	for _, s := range in {
		for f := 0; f < factor; f++ {
			out = append(out, s)
		}
	}
	return out
}

// Downsample keeps every factor-th sample without filtering. factor <= 1 returns the input.
func Downsample(in []int16, factor int) []int16 {
	if factor <= 1 {
		return in
	}
	n := len(in) / factor
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = in[i*factor]
	}
	return out
}

// PCM16FromBytes reads little-endian samples, ignoring a trailing odd byte.
func PCM16FromBytes(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// PCM16ToBytes writes samples little-endian.
func PCM16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// ResampleFactor is the integer ratio between the model rate and 8kHz.
func ResampleFactor(enc Encoding, modelRate int) int {
	if enc != EncodingPCM16 {
		return 1
	}
	f := int(math.Round(float64(modelRate) / TwilioSampleRate))
	if f < 1 {
		return 1
	}
	return f
}

// RealtimeToTwilio converts a base64 model audio chunk into base64 8kHz μ-law.
// ok is false when the chunk should be dropped.
func RealtimeToTwilio(b64 string, enc Encoding, factor int) (string, bool) {
	if b64 == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	if enc == EncodingPCMU {
		return base64.StdEncoding.EncodeToString(raw), true
	}
	if len(raw) < 2 {
		return "", false
	}
	if factor < 1 {
		factor = 1
	}
	samples := Downsample(PCM16FromBytes(raw), factor)
	if len(samples) == 0 {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(EncodeMuLaw(samples)), true
}

// TwilioToRealtime converts a base64 telephony μ-law frame into the model encoding.
func TwilioToRealtime(b64 string, enc Encoding, factor int) (string, bool) {
	if b64 == "" {
		return "", false
	}
	if enc == EncodingPCMU {
		return b64, true
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	pcm := Upsample(DecodeMuLaw(raw), factor)
	return base64.StdEncoding.EncodeToString(PCM16ToBytes(pcm)), true
}

// Beep renders a sine tone directly to 8kHz μ-law.
func Beep(freqHz float64, d time.Duration) []byte {
	n := int(d.Milliseconds() * TwilioSampleRate / 1000)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		t := float64(i) / TwilioSampleRate
		out[i] = EncodeMuLawSample(int16(math.Round(math.Sin(2*math.Pi*freqHz*t) * 12000)))
	}
	return out
}
