package private

import (
	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

type signRequest struct {
	Counterparty string `json:"counterparty" validate:"required,pubkey"`
	Up           uint64 `json:"up"`
	Down         uint64 `json:"down"`
}

type crawlRequest struct {
	Peer     string `json:"peer" validate:"required,pubkey"`
	Sequence uint32 `json:"sequence"`
}

type peerRequest struct {
	PublicKey string `json:"public_key" validate:"required,pubkey"`
	Host      string `json:"host" validate:"required,hostname_port"`
}

type signed struct {
	database.Block
	Hash signature.Hash `json:"hash"`
}
