package public

import (
	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/multichain/transport"
	"github.com/ardanlabs/multichain/foundation/multichain/worker"
)

type block struct {
	database.Block
	Hash     signature.Hash `json:"hash"`
	Name     string         `json:"name"`
	LinkName string         `json:"link_name"`
}

type stats struct {
	state.Statistics
	Name string `json:"name"`
}

type peerInfo struct {
	PublicKey signature.PublicKey `json:"public_key"`
	Name      string              `json:"name"`
	Host      string              `json:"host"`
}

type status struct {
	PublicKey signature.PublicKey `json:"public_key"`
	Name      string              `json:"name"`
	P2PHost   string              `json:"p2p_host"`
	Peers     int                 `json:"peers"`
	Transport transport.Stats     `json:"transport"`
	Worker    worker.Stats        `json:"worker"`
}
