package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"HexPoQ/internal/logger"
	"HexPoQ/internal/proof"
	"HexPoQ/internal/storage"
)

const (
	// archiveVersion is the current archive format version.
	archiveVersion = 1

	// proofPrefix namespaces accepted-proof records in storage.
	proofPrefix = "proof:"
)

// entry is one archived proof with its artifact key.
type entry struct {
	Artifact string          `json:"artifact"` // Artifact is the proof's artifact hash
	Proof    json.RawMessage `json:"proof"`    // Proof is the serialized proof record
}

// envelope is the serialized archive: a versioned, checksummed bundle of
// every accepted proof.
type envelope struct {
	Version   int     `json:"version"`    // Version is the archive format version
	CreatedAt int64   `json:"created_at"` // CreatedAt is the creation unix time
	Checksum  string  `json:"checksum"`   // Checksum is the hex blake3 of the entries
	Proofs    []entry `json:"proofs"`     // Proofs are the archived records
}

// SaveProof persists an accepted proof under its artifact.
func SaveProof(db *storage.Store, p *proof.QuantumProof) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}

	return db.Set([]byte(proofPrefix+p.ProofArtifact), data)
}

// LoadProof retrieves an accepted proof by artifact.
// Returns nil if the artifact is unknown.
func LoadProof(db *storage.Store, artifact string) (*proof.QuantumProof, error) {
	data, err := db.Get([]byte(proofPrefix + artifact))
	if err != nil || data == nil {
		return nil, err
	}

	var p proof.QuantumProof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal proof %s: %w", artifact, err)
	}

	return &p, nil
}

// CountProofs returns the number of accepted proofs in storage.
func CountProofs(db *storage.Store) (int, error) {
	count := 0
	err := db.IteratePrefix([]byte(proofPrefix), func(key, value []byte) error {
		count++
		return nil
	})

	return count, err
}

// Create bundles every accepted proof in storage into a compressed archive.
func Create(db *storage.Store) ([]byte, error) {
	entries, err := collectProofs(db)
	if err != nil {
		return nil, fmt.Errorf("collect proofs:\n%w", err)
	}

	env := envelope{
		Version:   archiveVersion,
		CreatedAt: time.Now().Unix(),
		Checksum:  hex.EncodeToString(computeChecksum(entries)),
		Proofs:    entries,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal archive: %w", err)
	}

	compressed, err := Compress(raw)
	if err != nil {
		return nil, err
	}

	logger.Info("archive created",
		"proofs", len(entries),
		"raw_bytes", len(raw),
		"compressed_bytes", len(compressed))

	return compressed, nil
}

// Apply restores an archive into storage, verifying its checksum first.
// Returns the number of proofs written. Existing records with the same
// artifact are overwritten; everything else is left untouched.
func Apply(db *storage.Store, data []byte) (int, error) {
	raw, err := Decompress(data)
	if err != nil {
		return 0, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, fmt.Errorf("unmarshal archive: %w", err)
	}

	if env.Version != archiveVersion {
		return 0, fmt.Errorf("unsupported archive version %d", env.Version)
	}

	if err := verifyChecksum(&env); err != nil {
		return 0, fmt.Errorf("verify checksum:\n%w", err)
	}

	pairs := make([]storage.KeyValue, len(env.Proofs))
	for i, e := range env.Proofs {
		pairs[i] = storage.KeyValue{
			Key:   []byte(proofPrefix + e.Artifact),
			Value: e.Proof,
		}
	}

	if err := db.SetBatch(pairs); err != nil {
		return 0, fmt.Errorf("write proofs:\n%w", err)
	}

	return len(env.Proofs), nil
}

// collectProofs iterates the proof keyspace in artifact order.
func collectProofs(db *storage.Store) ([]entry, error) {
	var entries []entry

	err := db.IteratePrefix([]byte(proofPrefix), func(key, value []byte) error {
		// Copy value, it is invalid once the iterator advances
		data := make([]byte, len(value))
		copy(data, value)

		entries = append(entries, entry{
			Artifact: string(key[len(proofPrefix):]),
			Proof:    data,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// computeChecksum hashes the entries in artifact order.
// Format per entry: artifact bytes + u32 data length + data bytes.
func computeChecksum(entries []entry) []byte {
	sorted := make([]entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Artifact < sorted[j].Artifact
	})

	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], archiveVersion)
	hasher.Write(buf[:])

	for _, e := range sorted {
		hasher.Write([]byte(e.Artifact))
		binary.BigEndian.PutUint32(buf[:], uint32(len(e.Proof)))
		hasher.Write(buf[:])
		hasher.Write(e.Proof)
	}

	return hasher.Sum(nil)
}

// verifyChecksum recomputes the entries checksum and compares.
func verifyChecksum(env *envelope) error {
	stored, err := hex.DecodeString(env.Checksum)
	if err != nil || len(stored) != 32 {
		return fmt.Errorf("invalid checksum encoding")
	}

	if !bytes.Equal(computeChecksum(env.Proofs), stored) {
		return fmt.Errorf("checksum mismatch")
	}

	return nil
}

// Compress compresses archive data using zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed archive data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
