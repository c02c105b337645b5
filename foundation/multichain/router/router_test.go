package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/router"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

type handlers struct {
	calls []string
	reply []wire.Envelope
	err   error
}

func (h *handlers) ReceivedHalfBlock(from signature.PublicKey, block database.Block) ([]wire.Envelope, error) {
	h.calls = append(h.calls, "half")
	return h.reply, h.err
}

func (h *handlers) ReceivedFullBlock(from signature.PublicKey, block database.Block, mate database.Block) ([]wire.Envelope, error) {
	h.calls = append(h.calls, "full")
	return h.reply, h.err
}

func (h *handlers) ReceivedCrawlRequest(from signature.PublicKey, seq uint32) ([]wire.Envelope, error) {
	h.calls = append(h.calls, "crawl")
	return h.reply, h.err
}

func (h *handlers) ReceivedCrawlResume(from signature.PublicKey) ([]wire.Envelope, error) {
	h.calls = append(h.calls, "resume")
	return h.reply, h.err
}

type sent struct {
	to      peer.Peer
	payload []byte
}

type transport struct {
	sent []sent
}

func (tr *transport) Send(ctx context.Context, to peer.Peer, payload []byte) error {
	tr.sent = append(tr.sent, sent{to: to, payload: payload})
	return nil
}

type scheduler struct {
	received  []wire.Envelope
	connected []signature.PublicKey
}

func (s *scheduler) SignalReceive(env wire.Envelope) bool {
	s.received = append(s.received, env)
	return true
}

func (s *scheduler) SignalConnect(publicKey signature.PublicKey) {
	s.connected = append(s.connected, publicKey)
}

func newKey(t *testing.T) signature.PublicKey {
	kp, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	return kp.PublicKey
}

func Test_Receive(t *testing.T) {
	from := newKey(t)

	sch := scheduler{}
	rtr := router.New(router.Config{KnownPeers: peer.NewPeerSet()})
	rtr.Scheduler = &sch

	rtr.Receive(from, []byte{9, 9})
	rtr.Receive(from, nil)
	if len(sch.received) != 0 {
		t.Fatalf("Should drop payloads that don't decode, got %d queued.", len(sch.received))
	}

	rtr.Receive(from, wire.Encode(wire.Crawl{Sequence: 5}))
	if len(sch.received) != 1 || sch.received[0].Peer != from || sch.received[0].Message != (wire.Crawl{Sequence: 5}) {
		t.Fatalf("Should queue the decoded message, got %v.", sch.received)
	}

	p := peer.New(from, "127.0.0.1:9080")
	rtr.Connected(p)
	rtr.Connected(p)
	if len(sch.connected) != 1 || sch.connected[0] != from {
		t.Fatalf("Should signal a new peer once, got %d signals.", len(sch.connected))
	}
}

func Test_Dispatch(t *testing.T) {
	known := newKey(t)
	unknown := newKey(t)

	ps := peer.NewPeerSet()
	ps.Add(peer.New(known, "10.0.0.1:9080"))

	tt := []struct {
		name string
		msg  wire.Message
		call string
	}{
		{"half", wire.HalfBlock{}, "half"},
		{"full", wire.FullBlock{}, "full"},
		{"crawl", wire.Crawl{Sequence: 1}, "crawl"},
		{"resume", wire.Resume{}, "resume"},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			h := handlers{
				reply: []wire.Envelope{
					{Peer: known, Message: wire.Resume{}},
					{Peer: unknown, Message: wire.Resume{}},
				},
			}
			tr := transport{}
			rtr := router.New(router.Config{Handlers: &h, KnownPeers: ps, Transport: &tr})

			if err := rtr.Dispatch(context.Background(), wire.Envelope{Peer: known, Message: tst.msg}); err != nil {
				t.Fatalf("Test %s:\tShould be able to dispatch: %s", tst.name, err)
			}

			if len(h.calls) != 1 || h.calls[0] != tst.call {
				t.Fatalf("Test %s:\tShould call the %s handler, got %v.", tst.name, tst.call, h.calls)
			}

			if len(tr.sent) != 1 || tr.sent[0].to.Host != "10.0.0.1:9080" {
				t.Fatalf("Test %s:\tShould deliver only to the known peer, got %d sends.", tst.name, len(tr.sent))
			}

			if msg, err := wire.Decode(tr.sent[0].payload); err != nil || msg != (wire.Resume{}) {
				t.Fatalf("Test %s:\tShould deliver the encoded reply: %v", tst.name, err)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_DispatchError(t *testing.T) {
	from := newKey(t)
	storeErr := errors.New("disk gone")

	h := handlers{err: storeErr}
	rtr := router.New(router.Config{Handlers: &h, KnownPeers: peer.NewPeerSet(), Transport: &transport{}})

	if err := rtr.Dispatch(context.Background(), wire.Envelope{Peer: from, Message: wire.Crawl{}}); !errors.Is(err, storeErr) {
		t.Fatalf("Should return the handler error, got %v.", err)
	}

	if err := rtr.Deliver(context.Background(), wire.Envelope{Peer: from, Message: wire.Resume{}}); !errors.Is(err, peer.ErrUnknownPeer) {
		t.Fatalf("Should not deliver to an unknown peer, got %v.", err)
	}
}
