package ble

import (
	"encoding/binary"
	"fmt"

	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

// A protocol message rarely fits in one BLE write or notification, so it is
// cut into chunks sized to the negotiated block length. Each chunk carries a
// one-byte header: bit 7 flags the final chunk, bits 0-6 hold a sequence
// counter (mod 128). The message itself is prefixed with a two-byte
// big-endian length so the receiver can cross-check the reassembled payload
// against what the sender declared.
const (
	frameHeaderLen   = 1
	frameFinal       = 0x80
	frameSeqMask     = 0x7f
	lengthPrefixLen  = 2
	MaxMessageLength = 1024 // protocol limit on a single encoded message
)

// SplitMessage prepends the length prefix to msg and cuts it into chunks of
// at most blockLength bytes, in transmission order.
func SplitMessage(msg []byte, blockLength int) ([][]byte, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("%w: empty message", protocol.ErrBadFrame)
	}
	if len(msg) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message length %d exceeds %d", protocol.ErrBadFrame, len(msg), MaxMessageLength)
	}
	if blockLength <= frameHeaderLen {
		return nil, fmt.Errorf("%w: block length %d leaves no payload room", protocol.ErrBadFrame, blockLength)
	}

	framed := make([]byte, lengthPrefixLen+len(msg))
	binary.BigEndian.PutUint16(framed, uint16(len(msg)))
	copy(framed[lengthPrefixLen:], msg)

	payloadLen := blockLength - frameHeaderLen
	var chunks [][]byte
	for seq := 0; len(framed) > 0; seq++ {
		n := min(payloadLen, len(framed))
		chunk := make([]byte, frameHeaderLen+n)
		chunk[0] = byte(seq) & frameSeqMask
		if n == len(framed) {
			chunk[0] |= frameFinal
		}
		copy(chunk[frameHeaderLen:], framed[:n])
		framed = framed[n:]
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Assembler reassembles notification chunks into one complete message. It
// validates the sequence counter defensively even though the notify
// characteristic delivers in order; any violation discards the in-flight
// message, and the caller decides whether to retry the request.
type Assembler struct {
	next byte
	buf  []byte
}

// Pending reports whether a partially assembled message is buffered.
func (a *Assembler) Pending() bool {
	return len(a.buf) > 0 || a.next != 0
}

// Reset discards any partially assembled message.
func (a *Assembler) Reset() {
	a.next = 0
	a.buf = nil
}

// Feed consumes one notification chunk. It returns the complete message once
// the final chunk arrives, nil while the message is still partial, and
// protocol.ErrBadFrame (after discarding the in-flight message) on a
// duplicate, out-of-sequence, or inconsistent chunk.
func (a *Assembler) Feed(chunk []byte) ([]byte, error) {
	if len(chunk) < frameHeaderLen {
		a.Reset()
		return nil, fmt.Errorf("%w: empty chunk", protocol.ErrBadFrame)
	}

	seq := chunk[0] & frameSeqMask
	final := chunk[0]&frameFinal != 0
	if want := a.next & frameSeqMask; seq != want {
		started := a.Pending()
		a.Reset()
		if started && seq == (want-1)&frameSeqMask {
			return nil, fmt.Errorf("%w: duplicate chunk %d", protocol.ErrBadFrame, seq)
		}
		return nil, fmt.Errorf("%w: chunk %d arrived, expected %d", protocol.ErrBadFrame, seq, want)
	}

	a.buf = append(a.buf, chunk[frameHeaderLen:]...)
	a.next++
	if len(a.buf) > lengthPrefixLen+MaxMessageLength {
		a.Reset()
		return nil, fmt.Errorf("%w: message exceeds %d bytes", protocol.ErrBadFrame, MaxMessageLength)
	}
	if !final {
		return nil, nil
	}

	if len(a.buf) < lengthPrefixLen {
		a.Reset()
		return nil, fmt.Errorf("%w: final chunk before length prefix", protocol.ErrBadFrame)
	}
	declared := int(binary.BigEndian.Uint16(a.buf))
	msg := a.buf[lengthPrefixLen:]
	a.Reset()
	if declared != len(msg) {
		return nil, fmt.Errorf("%w: declared %d bytes, assembled %d", protocol.ErrBadFrame, declared, len(msg))
	}
	return msg, nil
}
