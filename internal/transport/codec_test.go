package transport

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	if got := buf.String(); got != "hello\r\n" {
		t.Errorf("buf = %q, want %q", got, "hello\r\n")
	}
}

func TestFrameScanner_MultipleFrames(t *testing.T) {
	input := "first\r\nsecond\r\nthird\r\n"
	scanner := NewFrameScanner(strings.NewReader(input))

	var got []string
	for scanner.Scan() {
		got = append(got, string(scanner.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFrameScanner_NoTrailingCRLF(t *testing.T) {
	scanner := NewFrameScanner(strings.NewReader("only\r\nleftover"))

	var got []string
	for scanner.Scan() {
		got = append(got, string(scanner.Bytes()))
	}

	want := []string{"only", "leftover"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFrameScanner_BareLFIsNotABoundary(t *testing.T) {
	scanner := NewFrameScanner(strings.NewReader("a\nb\r\n"))

	var got []string
	for scanner.Scan() {
		got = append(got, string(scanner.Bytes()))
	}

	if len(got) != 1 || got[0] != "a\nb" {
		t.Errorf("got %v, want single frame %q", got, "a\nb")
	}
}

func TestFrameScanner_Empty(t *testing.T) {
	scanner := NewFrameScanner(strings.NewReader(""))
	if scanner.Scan() {
		t.Error("expected no frames from empty input")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
