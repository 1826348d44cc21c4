package attest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"HexPoQ/internal/logger"
)

var (
	// ErrBadAttestation is returned when an attestation's signature does not
	// verify against its claimed public key.
	ErrBadAttestation = errors.New("invalid attestation signature")

	// ErrUnknownValidator is returned when an attestation comes from a key
	// outside the collector's validator set.
	ErrUnknownValidator = errors.New("attestation from unknown validator")
)

// attestPrefix domain-separates attestation messages from every other
// signature in the protocol.
const attestPrefix = "hexpoq-attest:"

// Attestation is one validator's BLS signature over an accepted proof
// artifact.
type Attestation struct {
	Artifact  string `json:"artifact"`   // Artifact is the attested proof artifact
	PublicKey []byte `json:"public_key"` // PublicKey identifies the signing validator
	Signature []byte `json:"signature"`  // Signature is the compressed BLS signature
}

// Certificate proves that at least threshold validators attested the same
// artifact. The bitmap records which validator-set members signed.
type Certificate struct {
	Artifact  string `json:"artifact"`  // Artifact is the attested proof artifact
	Signature []byte `json:"signature"` // Signature aggregates the signers' signatures
	Bitmap    []byte `json:"bitmap"`    // Bitmap marks signer indices in the validator set
}

// attestMessage is the exact byte sequence validators sign for an artifact.
func attestMessage(artifact string) []byte {
	return []byte(attestPrefix + artifact)
}

// Sign produces this validator's attestation for an artifact.
func (k *KeyPair) Sign(artifact string) *Attestation {
	return &Attestation{
		Artifact:  artifact,
		PublicKey: k.PublicKeyBytes(),
		Signature: k.sign(attestMessage(artifact)),
	}
}

// Verify checks a single attestation.
func (a *Attestation) Verify() bool {
	return verifySignature(a.Signature, attestMessage(a.Artifact), a.PublicKey)
}

// Collector gathers attestations per artifact until a threshold of the
// validator set has signed, then emits a certificate. The set grows as
// validators announce their keys. Safe for concurrent use.
type Collector struct {
	threshold int

	mu         sync.Mutex
	validators [][]byte                  // validators is the ordered validator set
	indexOf    map[string]int            // indexOf maps hex public key to set index
	pending    map[string]map[int][]byte // pending maps artifact to signer index to signature
	complete   map[string]*Certificate   // complete holds issued certificates
}

// NewCollector creates a collector seeded with the given validator set.
// A threshold below 1 is raised to 1; a threshold above the current set
// size is kept, so certificates stay unreachable until enough validators
// join via AddValidator.
func NewCollector(validators [][]byte, threshold int) *Collector {
	if threshold < 1 {
		threshold = 1
	}

	indexOf := make(map[string]int, len(validators))
	for i, pk := range validators {
		indexOf[hex.EncodeToString(pk)] = i
	}

	return &Collector{
		validators: validators,
		indexOf:    indexOf,
		threshold:  threshold,
		pending:    make(map[string]map[int][]byte),
		complete:   make(map[string]*Certificate),
	}
}

// AddValidator appends a public key to the validator set. It reports
// whether the key was new; malformed and already-known keys are ignored.
func (c *Collector) AddValidator(publicKey []byte) bool {
	if len(publicKey) != PublicKeySize {
		return false
	}

	keyHex := hex.EncodeToString(publicKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.indexOf[keyHex]; known {
		return false
	}

	c.indexOf[keyHex] = len(c.validators)
	c.validators = append(c.validators, publicKey)

	logger.Debug("validator joined attestation set",
		"key", keyHex[:12], "size", len(c.validators))

	return true
}

// Validators returns a snapshot of the current validator set.
func (c *Collector) Validators() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := make([][]byte, len(c.validators))
	copy(set, c.validators)

	return set
}

// Add records an attestation. It returns the certificate once the threshold
// is reached, or nil while more signatures are needed. Duplicate signatures
// from the same validator are ignored.
func (c *Collector) Add(a *Attestation) (*Certificate, error) {
	c.mu.Lock()
	idx, ok := c.indexOf[hex.EncodeToString(a.PublicKey)]
	c.mu.Unlock()

	if !ok {
		return nil, ErrUnknownValidator
	}

	if !a.Verify() {
		return nil, fmt.Errorf("%w: validator %d", ErrBadAttestation, idx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cert, done := c.complete[a.Artifact]; done {
		return cert, nil
	}

	signers, ok := c.pending[a.Artifact]
	if !ok {
		signers = make(map[int][]byte)
		c.pending[a.Artifact] = signers
	}
	signers[idx] = a.Signature

	if len(signers) < c.threshold {
		return nil, nil
	}

	cert, err := c.buildCertificate(a.Artifact, signers)
	if err != nil {
		return nil, err
	}

	c.complete[a.Artifact] = cert
	delete(c.pending, a.Artifact)

	logger.Info("attestation certificate issued",
		"artifact", a.Artifact[:16], "signers", len(signers))

	return cert, nil
}

// Certificate returns the issued certificate for an artifact, if any.
func (c *Collector) Certificate(artifact string) *Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.complete[artifact]
}

// buildCertificate aggregates the collected signatures. Caller holds c.mu.
func (c *Collector) buildCertificate(artifact string, signers map[int][]byte) (*Certificate, error) {
	bitmap := make([]byte, (len(c.validators)+7)/8)
	signatures := make([][]byte, 0, len(signers))

	// Walk indices in set order so aggregation is deterministic
	for idx := 0; idx < len(c.validators); idx++ {
		sig, ok := signers[idx]
		if !ok {
			continue
		}

		bitmap[idx/8] |= 1 << (idx % 8)
		signatures = append(signatures, sig)
	}

	aggregated, err := aggregateSignatures(signatures)
	if err != nil {
		return nil, fmt.Errorf("aggregate attestations: %w", err)
	}

	return &Certificate{
		Artifact:  artifact,
		Signature: aggregated,
		Bitmap:    bitmap,
	}, nil
}

// VerifyCertificate checks a certificate against a validator set and
// threshold: the bitmap must mark at least threshold validators and the
// aggregated signature must verify against exactly those keys.
func VerifyCertificate(cert *Certificate, validators [][]byte, threshold int) bool {
	if cert == nil {
		return false
	}

	signers := signerKeys(cert.Bitmap, validators)
	if len(signers) < threshold {
		return false
	}

	return verifyAggregated(cert.Signature, attestMessage(cert.Artifact), signers)
}

// signerKeys extracts the public keys marked in the bitmap.
func signerKeys(bitmap []byte, validators [][]byte) [][]byte {
	var keys [][]byte

	for idx := range validators {
		if idx/8 >= len(bitmap) {
			break
		}
		if bitmap[idx/8]&(1<<(idx%8)) != 0 {
			keys = append(keys, validators[idx])
		}
	}

	return keys
}
