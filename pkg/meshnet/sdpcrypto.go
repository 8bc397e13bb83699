package meshnet

import (
	"encoding/base64"
	"fmt"

	"github.com/browser-network/network/pkg/meshnet/crypto"
)

// encryptSDP encrypts plaintext SDP to recipient's Address and returns it
// base64-encoded so it can travel inside the Negotiation.SDP string field
// alongside plaintext SDP (spec §4.1: asymmetric encryption of negotiation
// payloads when signing is enabled). A no-op passthrough when id is unsigned.
func encryptSDP(id *Identity, recipient Address, plaintext string) (string, error) {
	if !id.Signed() {
		return plaintext, nil
	}
	ciphertext, err := crypto.Encrypt(id.KeyPair, string(recipient), []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("meshnet: encrypt sdp: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSDP reverses encryptSDP. A no-op passthrough when id is unsigned.
func decryptSDP(id *Identity, sender Address, encoded string) (string, error) {
	if !id.Signed() {
		return encoded, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("meshnet: decode sdp: %w", err)
	}
	plaintext, err := crypto.Decrypt(id.KeyPair, string(sender), ciphertext)
	if err != nil {
		return "", fmt.Errorf("meshnet: decrypt sdp: %w", err)
	}
	return string(plaintext), nil
}

// signCanonical signs canonical message bytes with id's signing key.
func signCanonical(id *Identity, canonical []byte) (string, error) {
	return crypto.Sign(id.KeyPair, canonical)
}

// verifyCanonical checks a hex signature against canonical bytes, treating
// signer as the hex-encoded public key (an Address, when signing is
// enabled, is always its signer's public key).
func verifyCanonical(signer Address, canonical []byte, signatureHex string) (bool, error) {
	return crypto.Verify(string(signer), canonical, signatureHex)
}
