package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame's body, guarding against a
// corrupted or adversarial length prefix causing an unbounded
// allocation.
const maxFrameSize = 64 << 20 // 64 MiB, generous for captured build-helper stdout/stderr.

// writeFrame encodes v as JSON and writes it as a single length-prefixed
// frame: a 4-byte big-endian length followed by that many bytes of body.
// Endianness is fixed by this implementation and consistent across
// processes because they are all the same binary (spec.md §4.5).
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))

	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}

	return nil
}

// readFrame reads one length-prefixed frame from r and decodes its body
// as JSON into v.
func readFrame(r io.Reader, v any) error {
	var lenPrefix [4]byte

	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("reading frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return fmt.Errorf("frame length %d exceeds maximum %d", n, maxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("reading frame body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding frame body: %w", err)
	}

	return nil
}
