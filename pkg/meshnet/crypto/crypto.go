// Package crypto implements the two pure signing/verification functions and
// the key-derivation and SDP-encryption primitives that meshnet treats as an
// external collaborator. Signing uses secp256k1/ECDSA over a BLAKE3 digest of
// the canonical message bytes; SDP encryption is an ECIES construction on the
// same secp256k1 curve, sealing with chacha20poly1305.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyPair holds a secp256k1 signing key. PublicHex is the node's Address.
type KeyPair struct {
	Private   *secp256k1.PrivateKey
	PublicHex string
}

// GenerateKeyPair creates a new random secp256k1 signing key.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromSecret derives a KeyPair from secret's raw bytes (no hex
// decoding is done): the first 32 bytes are used as the private key, and a
// shorter secret is hashed with BLAKE3 to 32 bytes instead. It fails only on
// empty input, matching the "secret cannot be converted to a public key"
// failure mode being reserved for genuinely empty input.
func KeyPairFromSecret(secret []byte) (*KeyPair, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("crypto: empty secret")
	}
	var raw [32]byte
	if len(secret) >= 32 {
		copy(raw[:], secret[:32])
	} else {
		// Hash shorter secrets up to 32 bytes deterministically.
		d := blake3.Sum256(secret)
		copy(raw[:], d[:])
	}
	priv := secp256k1.PrivKeyFromBytes(raw[:])
	return newKeyPair(priv), nil
}

func newKeyPair(priv *secp256k1.PrivateKey) *KeyPair {
	pub := priv.PubKey()
	return &KeyPair{
		Private:   priv,
		PublicHex: hex.EncodeToString(pub.SerializeCompressed()),
	}
}

// CanonicalDigest hashes canonical message bytes with BLAKE3 down to a
// 32-byte digest suitable for ECDSA signing.
func CanonicalDigest(canonical []byte) [32]byte {
	return blake3.Sum256(canonical)
}

// Sign signs the canonical bytes of a message with the given secret key,
// returning a hex-encoded DER signature. This is one of the two pure
// functions the core treats as an external collaborator (see spec §1).
func Sign(kp *KeyPair, canonical []byte) (string, error) {
	if kp == nil {
		return "", fmt.Errorf("crypto: nil keypair")
	}
	digest := CanonicalDigest(canonical)
	sig := ecdsa.Sign(kp.Private, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a hex-encoded DER signature against canonical bytes and a
// hex-encoded compressed public key (the Address).
func Verify(publicHex string, canonical []byte, signatureHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(publicHex)
	if err != nil {
		return false, fmt.Errorf("crypto: bad public key %q: %w", publicHex, err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("crypto: bad public key %q: %w", publicHex, err)
	}
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("crypto: bad signature: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("crypto: bad signature: %w", err)
	}
	digest := CanonicalDigest(canonical)
	return sig.Verify(digest[:], pub), nil
}

// Encrypt implements a minimal ECIES construction directly on secp256k1: an
// ephemeral key is generated, ECDH'd against the recipient's static public
// key (their Address), and the shared point is hashed with BLAKE3 into an
// ChaCha20-Poly1305 key. The wire format is
// ephemeralPubCompressed(33) || nonce(12) || ciphertext+tag.
//
// Returns a verbatim copy of plaintext when kp is nil (signing disabled ->
// the encryption hook is the identity function per spec §4.1).
func Encrypt(kp *KeyPair, recipientAddress string, plaintext []byte) ([]byte, error) {
	if kp == nil {
		out := make([]byte, len(plaintext))
		copy(out, plaintext)
		return out, nil
	}
	recipientPub, err := parseAddress(recipientAddress)
	if err != nil {
		return nil, err
	}

	ephemeral, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: ephemeral key: %w", err)
	}
	sharedKey := eciesSharedKey(ephemeral, recipientPub)

	gcm, err := newGCM(sharedKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	out := make([]byte, 0, 33+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, ephemeral.PubKey().SerializeCompressed()...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt reverses Encrypt using the local key. senderAddress is accepted
// for symmetry with Encrypt's signature but unused: ECIES derives the shared
// key from the ephemeral public key embedded in the ciphertext, not from the
// sender's static Address.
func Decrypt(kp *KeyPair, senderAddress string, ciphertext []byte) ([]byte, error) {
	if kp == nil {
		out := make([]byte, len(ciphertext))
		copy(out, ciphertext)
		return out, nil
	}
	if len(ciphertext) < 33+12 {
		return nil, fmt.Errorf("crypto: ciphertext too short")
	}
	ephemeralPub, err := secp256k1.ParsePubKey(ciphertext[:33])
	if err != nil {
		return nil, fmt.Errorf("crypto: bad ephemeral key: %w", err)
	}
	sharedKey := eciesSharedKey(kp.Private, ephemeralPub)

	gcm, err := newGCM(sharedKey)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	nonce := ciphertext[33 : 33+nonceSize]
	sealed := ciphertext[33+nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return plaintext, nil
}

func parseAddress(address string) (*secp256k1.PublicKey, error) {
	pubBytes, err := hex.DecodeString(address)
	if err != nil {
		return nil, fmt.Errorf("crypto: bad public key %q: %w", address, err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: bad public key %q: %w", address, err)
	}
	return pub, nil
}

// eciesSharedKey performs ECDH (scalar multiplication of priv by pub's
// point) and hashes the resulting point's compressed form into a 32-byte
// symmetric key.
func eciesSharedKey(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) [32]byte {
	var point secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	shared := secp256k1.NewPublicKey(&result.X, &result.Y)
	return blake3.Sum256(shared.SerializeCompressed())
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: chacha20poly1305: %w", err)
	}
	return aead, nil
}
