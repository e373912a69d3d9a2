package ble

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

func buildMessage(n int) []byte {
	msg := make([]byte, n)
	for i := range msg {
		msg[i] = byte(i)
	}
	return msg
}

func TestSplitMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		messageLen  int
		blockLength int
	}{
		{"single chunk", 16, 150},
		{"default MTU", 64, 20},
		{"exact chunk boundary", 18, 20},
		{"one byte payload per chunk", 8, 2},
		{"negotiated MTU", 512, 150},
		{"max length message", MaxMessageLength, 20},
		{"more chunks than sequence space", 300, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := buildMessage(tt.messageLen)
			chunks, err := SplitMessage(msg, tt.blockLength)
			if err != nil {
				t.Fatalf("SplitMessage: %v", err)
			}
			for _, chunk := range chunks {
				if len(chunk) > tt.blockLength {
					t.Fatalf("chunk of %d bytes exceeds block length %d", len(chunk), tt.blockLength)
				}
			}
			var assembler Assembler
			for i, chunk := range chunks {
				got, err := assembler.Feed(chunk)
				if err != nil {
					t.Fatalf("Feed(chunk %d): %v", i, err)
				}
				if i < len(chunks)-1 {
					if got != nil {
						t.Fatalf("message completed after %d of %d chunks", i+1, len(chunks))
					}
					continue
				}
				if !bytes.Equal(got, msg) {
					t.Fatalf("reassembled %d bytes, want %d", len(got), len(msg))
				}
			}
			if assembler.Pending() {
				t.Fatal("assembler still pending after final chunk")
			}
		})
	}
}

func TestSplitMessageRejects(t *testing.T) {
	tests := []struct {
		name        string
		message     []byte
		blockLength int
	}{
		{"empty message", nil, 20},
		{"oversize message", buildMessage(MaxMessageLength + 1), 20},
		{"no payload room", buildMessage(16), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SplitMessage(tt.message, tt.blockLength); !errors.Is(err, protocol.ErrBadFrame) {
				t.Fatalf("got %v, want ErrBadFrame", err)
			}
		})
	}
}

func TestAssemblerRejectsDuplicateChunk(t *testing.T) {
	chunks, err := SplitMessage(buildMessage(64), 20)
	if err != nil {
		t.Fatal(err)
	}
	var assembler Assembler
	if _, err := assembler.Feed(chunks[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := assembler.Feed(chunks[0]); !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("got %v, want ErrBadFrame", err)
	}
	if assembler.Pending() {
		t.Fatal("in-flight message survived a duplicate chunk")
	}
}

func TestAssemblerFreshMismatchIsNotDuplicate(t *testing.T) {
	var assembler Assembler
	chunk := []byte{frameSeqMask, 0x00}
	_, err := assembler.Feed(chunk)
	if !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("got %v, want ErrBadFrame", err)
	}
	if strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("nothing was consumed, yet %q claims a duplicate", err)
	}
}

func TestAssemblerRejectsOutOfSequenceChunk(t *testing.T) {
	chunks, err := SplitMessage(buildMessage(64), 20)
	if err != nil {
		t.Fatal(err)
	}
	var assembler Assembler
	if _, err := assembler.Feed(chunks[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := assembler.Feed(chunks[2]); !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("got %v, want ErrBadFrame", err)
	}
}

func TestAssemblerRecoversAfterBadFrame(t *testing.T) {
	msg := buildMessage(64)
	chunks, err := SplitMessage(msg, 20)
	if err != nil {
		t.Fatal(err)
	}
	var assembler Assembler
	if _, err := assembler.Feed(chunks[1]); !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("got %v, want ErrBadFrame", err)
	}
	var got []byte
	for _, chunk := range chunks {
		got, err = assembler.Feed(chunk)
		if err != nil {
			t.Fatalf("Feed after reset: %v", err)
		}
	}
	if !bytes.Equal(got, msg) {
		t.Fatal("retransmitted message did not reassemble")
	}
}

func TestAssemblerRejectsLengthMismatch(t *testing.T) {
	// Final chunk declares five bytes but carries three.
	chunk := []byte{frameFinal, 0x00, 0x05, 'a', 'b', 'c'}
	var assembler Assembler
	if _, err := assembler.Feed(chunk); !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("got %v, want ErrBadFrame", err)
	}
}

func TestAssemblerRejectsTruncatedFinalChunk(t *testing.T) {
	var assembler Assembler
	if _, err := assembler.Feed([]byte{frameFinal, 0x00}); !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("got %v, want ErrBadFrame", err)
	}
}

func TestAssemblerSequentialMessages(t *testing.T) {
	var assembler Assembler
	for i := 0; i < 3; i++ {
		msg := buildMessage(48 + i)
		chunks, err := SplitMessage(msg, 20)
		if err != nil {
			t.Fatal(err)
		}
		var got []byte
		for _, chunk := range chunks {
			got, err = assembler.Feed(chunk)
			if err != nil {
				t.Fatalf("message %d: %v", i, err)
			}
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("message %d did not round-trip", i)
		}
	}
}
