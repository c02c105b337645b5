// Package signature provides helper functions for handling the ledger
// signature needs. One curve is used for the whole network: secp256k1 with
// compressed public keys and 64 byte [R|S] signatures.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Fixed sizes of the key and signature material that travels in a block.
const (
	PublicKeyLength = 33
	SignatureLength = 64
	HashLength      = sha256.Size
)

// PublicKey is the raw compressed form of a peer's long-term identity.
type PublicKey [PublicKeyLength]byte

// Sig is the raw [R|S] signature without the recovery id.
type Sig [SignatureLength]byte

// Hash is a 32 byte digest.
type Hash [HashLength]byte

// ZeroHash represents a hash code of zeros.
var ZeroHash Hash

// ErrInvalidPublicKey is returned when bytes do not decode to a point on the curve.
var ErrInvalidPublicKey = errors.New("invalid public key")

// multichainStamp is mixed into every signing digest. This will make it
// clear that the signature was produced for a ledger block and can't be
// replayed as some other signed message.
const multichainStamp = "\x19MultiChain Signed Block:\n32"

// =============================================================================

// KeyPair holds the private key and the derived public identity.
type KeyPair struct {
	Private   *ecdsa.PrivateKey
	PublicKey PublicKey
}

// GenerateKey constructs a new random key pair.
func GenerateKey() (KeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return KeyPair{}, err
	}

	return NewKeyPair(privateKey), nil
}

// NewKeyPair derives the public identity for the specified private key.
func NewKeyPair(privateKey *ecdsa.PrivateKey) KeyPair {
	var pk PublicKey
	copy(pk[:], crypto.CompressPubkey(&privateKey.PublicKey))

	return KeyPair{
		Private:   privateKey,
		PublicKey: pk,
	}
}

// HexToKeyPair constructs a key pair from a hex encoded private key.
func HexToKeyPair(hexKey string) (KeyPair, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return KeyPair{}, err
	}

	return NewKeyPair(privateKey), nil
}

// LoadKeyPair reads a hex encoded private key from disk.
func LoadKeyPair(path string) (KeyPair, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return KeyPair{}, err
	}

	return NewKeyPair(privateKey), nil
}

// SaveKeyPair writes the private key to disk in hex form.
func SaveKeyPair(path string, kp KeyPair) error {
	return crypto.SaveECDSA(path, kp.Private)
}

// =============================================================================

// Sign produces the signature of the data using the specified private key.
func Sign(privateKey *ecdsa.PrivateKey, data []byte) (Sig, error) {
	sig, err := crypto.Sign(stamp(data), privateKey)
	if err != nil {
		return Sig{}, err
	}

	var s Sig
	copy(s[:], sig[:crypto.RecoveryIDOffset])

	return s, nil
}

// Verify checks the signature over the data was produced by the private key
// matching the public key.
func Verify(publicKey PublicKey, data []byte, sig Sig) bool {
	if !ValidPublicKey(publicKey[:]) {
		return false
	}

	return crypto.VerifySignature(publicKey[:], stamp(data), sig[:])
}

// ValidPublicKey reports whether the bytes are a compressed point on the curve.
func ValidPublicKey(b []byte) bool {
	if len(b) != PublicKeyLength {
		return false
	}

	_, err := crypto.DecompressPubkey(b)
	return err == nil
}

// Sum returns the identity digest for the data.
func Sum(data []byte) Hash {
	return sha256.Sum256(data)
}

// =============================================================================

// ToPublicKey converts a hex string into a public key.
func ToPublicKey(hexKey string) (PublicKey, error) {
	b, err := hexutil.Decode(hexKey)
	if err != nil {
		b, err = hex.DecodeString(hexKey)
		if err != nil {
			return PublicKey{}, fmt.Errorf("decoding public key: %w", err)
		}
	}

	if !ValidPublicKey(b) {
		return PublicKey{}, ErrInvalidPublicKey
	}

	var pk PublicKey
	copy(pk[:], b)

	return pk, nil
}

// String returns the hex form of the public key.
func (pk PublicKey) String() string {
	return hexutil.Encode(pk[:])
}

// Mid returns a short identifier for the public key. It is only meant to
// make log lines readable.
func (pk PublicKey) Mid() string {
	sum := sha1.Sum(pk[:])
	return hex.EncodeToString(sum[:4])
}

// IsZero reports whether the key was never set.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// MarshalText implements the encoding.TextMarshaler interface so keys are
// hex strings in JSON and TOML.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return hexutil.Bytes(pk[:]).MarshalText()
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (pk *PublicKey) UnmarshalText(input []byte) error {
	key, err := ToPublicKey(string(input))
	if err != nil {
		return err
	}

	*pk = key
	return nil
}

// String returns the hex form of the hash.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return hexutil.Bytes(h[:]).MarshalText()
}

// String returns the hex form of the signature.
func (s Sig) String() string {
	return hexutil.Encode(s[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Sig) MarshalText() ([]byte, error) {
	return hexutil.Bytes(s[:]).MarshalText()
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the stamp embedded into the final hash.
func stamp(data []byte) []byte {
	h := crypto.Keccak256(data)
	return crypto.Keccak256([]byte(multichainStamp), h)
}
