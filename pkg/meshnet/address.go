package meshnet

import "github.com/browser-network/network/pkg/meshnet/crypto"

// Address identifies a node: the hex public key derived from its signing
// key when signing is enabled, or an arbitrary caller-supplied string when
// running unsigned. Uniqueness in unsigned mode is the caller's
// responsibility. Addresses compare as plain byte strings — no normalization
// is performed.
type Address string

// Wildcard is the destination value meaning "every node".
const Wildcard Address = "*"

// Identity bundles the local Address with its optional signing key. A nil
// KeyPair means the node is running unsigned: Sign/Verify/Encrypt/Decrypt
// all become no-ops, per spec §4.1/§4.3.
type Identity struct {
	Address Address
	KeyPair *crypto.KeyPair // nil when unsigned
}

// NewSignedIdentity derives an Identity from a raw secret. Returns an error
// if the secret cannot be converted to a public key — the one constructor
// failure mode that propagates synchronously per spec §7.
func NewSignedIdentity(secret []byte) (*Identity, error) {
	kp, err := crypto.KeyPairFromSecret(secret)
	if err != nil {
		return nil, err
	}
	return &Identity{Address: Address(kp.PublicHex), KeyPair: kp}, nil
}

// NewUnsignedIdentity builds an Identity from a caller-chosen Address with
// no signing key configured.
func NewUnsignedIdentity(address Address) *Identity {
	return &Identity{Address: address}
}

// Signed reports whether this identity has a configured signing key.
func (id *Identity) Signed() bool {
	return id != nil && id.KeyPair != nil
}
