// Package wire defines the messages peers exchange and their binary form.
// Every message travels as a length prefixed frame whose payload starts with
// a one byte tag.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// Tag identifies the kind of message in a payload.
type Tag byte

// Set of message tags.
const (
	TagHalfBlock Tag = 1
	TagFullBlock Tag = 2
	TagCrawl     Tag = 3
	TagResume    Tag = 4
)

var tagNames = map[Tag]string{
	TagHalfBlock: "HALF_BLOCK",
	TagFullBlock: "FULL_BLOCK",
	TagCrawl:     "CRAWL",
	TagResume:    "RESUME",
}

// String implements the Stringer interface.
func (t Tag) String() string {
	if name, exists := tagNames[t]; exists {
		return name
	}
	return fmt.Sprintf("TAG(%d)", byte(t))
}

// Set of errors returned when decoding payloads.
var (
	ErrDecode     = errors.New("malformed payload")
	ErrUnknownTag = errors.New("unknown message tag")
)

// =============================================================================

// Message is implemented by the four message types only.
type Message interface {
	Tag() Tag
	encode() []byte
}

// HalfBlock carries one signed block. It is used to propose and countersign
// and as a crawl response unit for blocks without a known mate.
type HalfBlock struct {
	Block database.Block
}

// FullBlock carries a block together with its countersignature.
type FullBlock struct {
	Block database.Block
	Mate  database.Block
}

// Crawl asks a peer for its chain starting at the sequence number. Zero asks
// the peer to start from the last block we know of it.
type Crawl struct {
	Sequence uint32
}

// Resume tells the caller more blocks may exist past the batch.
type Resume struct{}

// Tag implements the Message interface.
func (HalfBlock) Tag() Tag { return TagHalfBlock }

// Tag implements the Message interface.
func (FullBlock) Tag() Tag { return TagFullBlock }

// Tag implements the Message interface.
func (Crawl) Tag() Tag { return TagCrawl }

// Tag implements the Message interface.
func (Resume) Tag() Tag { return TagResume }

func (m HalfBlock) encode() []byte {
	return m.Block.Pack()
}

func (m FullBlock) encode() []byte {
	return append(m.Block.Pack(), m.Mate.Pack()...)
}

func (m Crawl) encode() []byte {
	return binary.BigEndian.AppendUint32(nil, m.Sequence)
}

func (Resume) encode() []byte {
	return nil
}

// =============================================================================

// Envelope pairs a message with the peer it comes from or goes to.
type Envelope struct {
	Peer    signature.PublicKey
	Message Message
}

// Encode returns the payload for the message: the tag followed by the body.
func Encode(msg Message) []byte {
	body := msg.encode()

	payload := make([]byte, 1, 1+len(body))
	payload[0] = byte(msg.Tag())

	return append(payload, body...)
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	tag, body := Tag(payload[0]), payload[1:]

	switch tag {
	case TagHalfBlock:
		block, err := database.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrDecode, tag, err)
		}
		return HalfBlock{Block: block}, nil

	case TagFullBlock:
		if len(body) != 2*database.PackedLength {
			return nil, fmt.Errorf("%w: %s: got %d bytes", ErrDecode, tag, len(body))
		}
		block, err := database.Unpack(body[:database.PackedLength])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrDecode, tag, err)
		}
		mate, err := database.Unpack(body[database.PackedLength:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrDecode, tag, err)
		}
		return FullBlock{Block: block, Mate: mate}, nil

	case TagCrawl:
		if len(body) != 4 {
			return nil, fmt.Errorf("%w: %s: got %d bytes", ErrDecode, tag, len(body))
		}
		return Crawl{Sequence: binary.BigEndian.Uint32(body)}, nil

	case TagResume:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %s: got %d bytes", ErrDecode, tag, len(body))
		}
		return Resume{}, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownTag, byte(tag))
}
