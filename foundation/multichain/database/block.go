package database

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// Sequence numbers with a reserved meaning.
const (
	UnknownSequence uint32 = 0
	GenesisSequence uint32 = 1
)

// Byte offsets of the packed block layout.
const (
	offUp         = 0
	offDown       = 8
	offTotalUp    = 16
	offTotalDown  = 24
	offPublicKey  = 32
	offSequence   = offPublicKey + signature.PublicKeyLength
	offLinkKey    = offSequence + 4
	offLinkSeq    = offLinkKey + signature.PublicKeyLength
	offPrevHash   = offLinkSeq + 4
	offSignature  = offPrevHash + signature.HashLength
	PackedLength  = offSignature + signature.SignatureLength
	unsignedBytes = offSignature
)

// GenesisHash is the previous hash carried by every genesis block.
var GenesisHash = signature.ZeroHash

// ErrDecode is returned when bytes can't be unpacked into a block.
var ErrDecode = errors.New("decode error")

// =============================================================================

// Block is one signed record of a bilateral interaction on the author's chain.
type Block struct {
	Up                 uint64              `json:"up"`
	Down               uint64              `json:"down"`
	TotalUp            uint64              `json:"total_up"`
	TotalDown          uint64              `json:"total_down"`
	PublicKey          signature.PublicKey `json:"public_key"`
	SequenceNumber     uint32              `json:"sequence_number"`
	LinkPublicKey      signature.PublicKey `json:"link_public_key"`
	LinkSequenceNumber uint32              `json:"link_sequence_number"`
	PreviousHash       signature.Hash      `json:"previous_hash"`
	Signature          signature.Sig       `json:"signature"`
}

// Pack returns the canonical bytes of the block including the signature.
// These are the bytes sent over the wire and hashed for the identity.
func (b Block) Pack() []byte {
	data := make([]byte, PackedLength)
	b.pack(data)
	copy(data[offSignature:], b.Signature[:])

	return data
}

// PackUnsigned returns the canonical bytes with the signature replaced by
// its zero placeholder. These are the bytes that get signed.
func (b Block) PackUnsigned() []byte {
	data := make([]byte, PackedLength)
	b.pack(data)

	return data
}

func (b Block) pack(data []byte) {
	binary.BigEndian.PutUint64(data[offUp:], b.Up)
	binary.BigEndian.PutUint64(data[offDown:], b.Down)
	binary.BigEndian.PutUint64(data[offTotalUp:], b.TotalUp)
	binary.BigEndian.PutUint64(data[offTotalDown:], b.TotalDown)
	copy(data[offPublicKey:], b.PublicKey[:])
	binary.BigEndian.PutUint32(data[offSequence:], b.SequenceNumber)
	copy(data[offLinkKey:], b.LinkPublicKey[:])
	binary.BigEndian.PutUint32(data[offLinkSeq:], b.LinkSequenceNumber)
	copy(data[offPrevHash:], b.PreviousHash[:])
}

// Unpack decodes the canonical bytes of a signed block.
func Unpack(data []byte) (Block, error) {
	if len(data) != PackedLength {
		return Block{}, fmt.Errorf("%w: block length %d, exp %d", ErrDecode, len(data), PackedLength)
	}

	b := Block{
		Up:                 binary.BigEndian.Uint64(data[offUp:]),
		Down:               binary.BigEndian.Uint64(data[offDown:]),
		TotalUp:            binary.BigEndian.Uint64(data[offTotalUp:]),
		TotalDown:          binary.BigEndian.Uint64(data[offTotalDown:]),
		SequenceNumber:     binary.BigEndian.Uint32(data[offSequence:]),
		LinkSequenceNumber: binary.BigEndian.Uint32(data[offLinkSeq:]),
	}
	copy(b.PublicKey[:], data[offPublicKey:offSequence])
	copy(b.LinkPublicKey[:], data[offLinkKey:offLinkSeq])
	copy(b.PreviousHash[:], data[offPrevHash:offSignature])
	copy(b.Signature[:], data[offSignature:])

	return b, nil
}

// Hash returns the identity hash of the block. It covers every field,
// the signature included.
func (b Block) Hash() signature.Hash {
	return signature.Sum(b.Pack())
}

// Sign returns a copy of the block carrying the signature of the author.
func (b Block) Sign(privateKey *ecdsa.PrivateKey) (Block, error) {
	sig, err := signature.Sign(privateKey, b.PackUnsigned())
	if err != nil {
		return Block{}, fmt.Errorf("signing block: %w", err)
	}

	b.Signature = sig
	return b, nil
}

// VerifySignature reports whether the signature was produced by the author.
func (b Block) VerifySignature() bool {
	return signature.Verify(b.PublicKey, b.PackUnsigned(), b.Signature)
}

// IsGenesis reports whether the block sits at the start of its chain. The
// previous hash is not consulted, the validator checks it separately.
func (b Block) IsGenesis() bool {
	return b.SequenceNumber == GenesisSequence
}

// IsLinked reports whether the block names its mate on the other chain.
func (b Block) IsLinked() bool {
	return b.LinkSequenceNumber != UnknownSequence
}

// Mates reports whether the two blocks reference each other.
func (b Block) Mates(other Block) bool {
	if b.PublicKey != other.LinkPublicKey || other.PublicKey != b.LinkPublicKey {
		return false
	}

	if b.IsLinked() && b.LinkSequenceNumber != other.SequenceNumber {
		return false
	}

	if other.IsLinked() && other.LinkSequenceNumber != b.SequenceNumber {
		return false
	}

	// Two proposals that both left the link open are not mates.
	return b.IsLinked() || other.IsLinked()
}

// String implements the Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("%s:%d->%s:%d up[%d] down[%d]", b.PublicKey.Mid(), b.SequenceNumber, b.LinkPublicKey.Mid(), b.LinkSequenceNumber, b.Up, b.Down)
}

// =============================================================================

// BlockData represents what is written to storage. The hash and insert time
// are derived values kept alongside the block and never travel on the wire.
type BlockData struct {
	Hash       signature.Hash
	Block      Block
	InsertTime time.Time
}

// NewBlockData constructs the value to write to storage.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:       block.Hash(),
		Block:      block,
		InsertTime: time.Now().UTC(),
	}
}
