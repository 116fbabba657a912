package barge

import (
	"testing"
	"time"
)

func TestEchoFilter(t *testing.T) {
	clk := newFakeClock()
	f := NewEchoFilter(800*time.Millisecond, 3000*time.Millisecond)
	f.now = clk.now

	if r := f.Check("コシヒカリ"); r != "" {
		t.Fatalf("nothing spoken yet, got %q", r)
	}

	f.NotePrompt("「コシヒカリ」でよろしいですか？")
	f.NoteAssistantDone()
	clk.advance(300 * time.Millisecond)
	if r := f.Check("はい"); r != "cooldown" {
		t.Fatalf("expected cooldown drop, got %q", r)
	}

	clk.advance(700 * time.Millisecond)
	if r := f.Check("コシヒカリでよろしいですか"); r != "echo" {
		t.Fatalf("expected echo drop, got %q", r)
	}
	if r := f.Check("はい"); r != "" {
		t.Fatalf("short reply must pass, got %q", r)
	}
	if r := f.Check("あきたこまちにします"); r != "" {
		t.Fatalf("unrelated reply must pass, got %q", r)
	}

	clk.advance(3 * time.Second)
	if r := f.Check("コシヒカリでよろしいですか"); r != "" {
		t.Fatalf("outside window must pass, got %q", r)
	}
}
