package network

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind tags the payload carried by a frame.
type Kind byte

const (
	// KindProof carries a serialized quantum proof.
	KindProof Kind = 1

	// KindAttestation carries a validator's attestation of an artifact.
	KindAttestation Kind = 2

	// KindChallenge carries an open challenge announcement.
	KindChallenge Kind = 3

	// KindArchiveRequest asks a peer for its compressed proof archive.
	KindArchiveRequest Kind = 4

	// KindProofRequest asks a peer for the proof behind an artifact.
	KindProofRequest Kind = 5

	// KindValidatorAnnounce carries a validator's attestation public key.
	KindValidatorAnnounce Kind = 6
)

const (
	// maxFrameSize caps a single frame (16 MB, archives included).
	maxFrameSize = 16 << 20

	// headerSize is length prefix plus kind byte.
	headerSize = 5
)

// writeFrame writes one frame to the writer.
// Format: [4 bytes big-endian payload length] [1 byte kind] [payload]
func writeFrame(w io.Writer, kind Kind, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large: %d > %d", len(payload), maxFrameSize)
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	header[4] = byte(kind)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// readFrame reads one frame from the reader.
func readFrame(r io.Reader) (Kind, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:4])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("frame too large: %d > %d", length, maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}

	return Kind(header[4]), payload, nil
}
