package audio

import (
	"encoding/base64"
	"math"
	"testing"
	"time"
)

func TestMuLaw_KnownVectors(t *testing.T) {
	cases := []struct {
		in   int16
		want byte
	}{
		{0, 0xff},
		{32767, 0x80},
		{-32768, 0x00},
		{32124, 0x80},
		{-1, 0x7f},
	}
	for _, tc := range cases {
		if got := EncodeMuLawSample(tc.in); got != tc.want {
			t.Fatalf("encode(%d) = %#x want %#x", tc.in, got, tc.want)
		}
	}
	if got := DecodeMuLawSample(0x80); got != 32124 {
		t.Fatalf("decode(0x80) = %d", got)
	}
	if got := DecodeMuLawSample(0x00); got != -32124 {
		t.Fatalf("decode(0x00) = %d", got)
	}
	if got := DecodeMuLawSample(0xff); got != 0 {
		t.Fatalf("decode(0xff) = %d", got)
	}
}

func TestMuLaw_RoundTripStable(t *testing.T) {
	for b := 0; b < 256; b++ {
		s := DecodeMuLawSample(byte(b))
		again := DecodeMuLawSample(EncodeMuLawSample(s))
		if again != s {
			t.Fatalf("byte %#x: decode=%d re-decode=%d", b, s, again)
		}
	}
}

func TestResample(t *testing.T) {
	in := []int16{1, 2, 3}
	up := Upsample(in, 3)
	if len(up) != 9 || up[0] != 1 || up[2] != 1 || up[3] != 2 || up[8] != 3 {
		t.Fatalf("unexpected upsample %v", up)
	}
	if got := Upsample(in, 1); len(got) != 3 {
		t.Fatalf("factor 1 must be identity")
	}
	down := Downsample(up, 3)
	if len(down) != 3 || down[1] != 2 {
		t.Fatalf("unexpected downsample %v", down)
	}
	if got := Downsample([]int16{1, 2, 3, 4, 5}, 2); len(got) != 2 || got[1] != 3 {
		t.Fatalf("floor length expected, got %v", got)
	}
}

func TestRealtimeToTwilio_PCMUPassthrough(t *testing.T) {
	in := base64.StdEncoding.EncodeToString([]byte{0xff, 0x7f, 0x55, 0x00})
	out, ok := RealtimeToTwilio(in, EncodingPCMU, 3)
	if !ok {
		t.Fatalf("expected ok")
	}
	raw, _ := base64.StdEncoding.DecodeString(out)
	if len(raw) != 4 || out != in {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

func TestRealtimeToTwilio_PCM16Downsample(t *testing.T) {
	const rate = 24000
	n := rate * 200 / 1000
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	in := base64.StdEncoding.EncodeToString(PCM16ToBytes(samples))
	out, ok := RealtimeToTwilio(in, EncodingPCM16, 3)
	if !ok {
		t.Fatalf("expected ok")
	}
	raw, _ := base64.StdEncoding.DecodeString(out)
	if len(raw) != 1600 {
		t.Fatalf("expected 1600 bytes, got %d", len(raw))
	}
}

func TestRealtimeToTwilio_Drops(t *testing.T) {
	for _, enc := range []Encoding{EncodingPCM16, EncodingPCMU} {
		if _, ok := RealtimeToTwilio("", enc, 3); ok {
			t.Fatalf("empty input must drop for %s", enc)
		}
		if _, ok := RealtimeToTwilio("%%%", enc, 3); ok {
			t.Fatalf("bad base64 must drop for %s", enc)
		}
	}
	one := base64.StdEncoding.EncodeToString([]byte{0x01})
	if _, ok := RealtimeToTwilio(one, EncodingPCM16, 1); ok {
		t.Fatalf("single odd byte must drop")
	}
	two := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})
	if _, ok := RealtimeToTwilio(two, EncodingPCM16, 3); ok {
		t.Fatalf("downsampled to zero samples must drop")
	}
}

func TestTwilioToRealtime_PCM16Upsamples(t *testing.T) {
	in := base64.StdEncoding.EncodeToString([]byte{0xff, 0x80})
	out, ok := TwilioToRealtime(in, EncodingPCM16, 3)
	if !ok {
		t.Fatalf("expected ok")
	}
	raw, _ := base64.StdEncoding.DecodeString(out)
	pcm := PCM16FromBytes(raw)
	if len(pcm) != 6 || pcm[0] != 0 || pcm[3] != 32124 {
		t.Fatalf("unexpected pcm %v", pcm)
	}
	if got, _ := TwilioToRealtime(in, EncodingPCMU, 3); got != in {
		t.Fatalf("pcmu must pass through")
	}
}

func TestBeepLength(t *testing.T) {
	if got := len(Beep(440, 600*time.Millisecond)); got != 4800 {
		t.Fatalf("expected 4800 samples, got %d", got)
	}
}

func TestResampleFactor(t *testing.T) {
	if ResampleFactor(EncodingPCMU, 24000) != 1 {
		t.Fatalf("pcmu factor must be 1")
	}
	if ResampleFactor(EncodingPCM16, 24000) != 3 || ResampleFactor(EncodingPCM16, 16000) != 2 {
		t.Fatalf("unexpected pcm16 factors")
	}
}
