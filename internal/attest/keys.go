package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"
)

const (
	// PublicKeySize is the size of a compressed BLS public key in bytes.
	PublicKeySize = 48

	// SignatureSize is the size of a compressed BLS signature in bytes.
	SignatureSize = 96
)

// dst is the domain separation tag for attestation signatures.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// KeyPair holds the BLS keys a validator attests with.
type KeyPair struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// DeriveKeyPair derives a deterministic attestation key pair from the
// validator's ED25519 identity key, via BLAKE3("hexpoq-attest-keygen" || seed).
func DeriveKeyPair(identity ed25519.PrivateKey) (*KeyPair, error) {
	h := blake3.New()
	h.Write([]byte("hexpoq-attest-keygen"))
	h.Write(identity.Seed())

	var derived [32]byte
	h.Sum(derived[:0])

	return NewKeyPairFromSeed(derived[:])
}

// GenerateKeyPair creates a key pair from a random seed.
func GenerateKeyPair() (*KeyPair, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return NewKeyPairFromSeed(ikm[:])
}

// NewKeyPairFromSeed creates a key pair from a deterministic seed of at
// least 32 bytes.
func NewKeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	return &KeyPair{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// PublicKeyBytes returns the compressed public key bytes.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.public.Compress()
}

// sign creates a BLS signature over a raw message.
func (k *KeyPair) sign(message []byte) []byte {
	return new(blst.P2Affine).Sign(k.secret, message, dst).Compress()
}

// verifySignature checks a single BLS signature.
func verifySignature(signature, message, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, dst)
}

// aggregateSignatures combines signatures over the same message into one.
func aggregateSignatures(signatures [][]byte) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, fmt.Errorf("no signatures to aggregate")
	}

	sigs := make([]*blst.P2Affine, len(signatures))
	for i, sigBytes := range signatures {
		if len(sigBytes) != SignatureSize {
			return nil, fmt.Errorf("invalid signature size at index %d", i)
		}

		sig := new(blst.P2Affine).Uncompress(sigBytes)
		if sig == nil {
			return nil, fmt.Errorf("invalid signature at index %d", i)
		}

		sigs[i] = sig
	}

	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(sigs, true) {
		return nil, fmt.Errorf("signature aggregation failed")
	}

	return agg.ToAffine().Compress(), nil
}

// verifyAggregated checks an aggregated signature against the aggregated
// public keys of the signers.
func verifyAggregated(signature, message []byte, publicKeys [][]byte) bool {
	if len(signature) != SignatureSize || len(publicKeys) == 0 {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pks := make([]*blst.P1Affine, len(publicKeys))
	for i, pkBytes := range publicKeys {
		if len(pkBytes) != PublicKeySize {
			return false
		}

		pk := new(blst.P1Affine).Uncompress(pkBytes)
		if pk == nil {
			return false
		}

		pks[i] = pk
	}

	aggPk := new(blst.P1Aggregate)
	if !aggPk.Aggregate(pks, true) {
		return false
	}

	return sig.Verify(true, aggPk.ToAffine(), true, message, dst)
}
