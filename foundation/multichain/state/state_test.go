package state_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/memory"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// outbox stands in for the worker and keeps what the state queued.
type outbox struct {
	mu   sync.Mutex
	sent []wire.Envelope
}

func (o *outbox) Shutdown() {}

func (o *outbox) SignalSend(env wire.Envelope) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sent = append(o.sent, env)
	return true
}

func (o *outbox) take() []wire.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()

	sent := o.sent
	o.sent = nil
	return sent
}

// fullQueue stands in for a worker that can't take more work.
type fullQueue struct{}

func (fullQueue) Shutdown() {}

func (fullQueue) SignalSend(env wire.Envelope) bool { return false }

type node struct {
	kp    signature.KeyPair
	db    *database.Database
	state *state.State
	out   *outbox
}

func newNode(t *testing.T, kp signature.KeyPair) node {
	strg, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to open memory storage: %s", err)
	}
	db := database.New(strg)

	st, err := state.New(state.Config{
		KeyPair:   kp,
		Database:  db,
		EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	out := outbox{}
	st.Worker = &out

	return node{kp: kp, db: db, state: st, out: &out}
}

// deliver hands the message to the node the way the router would.
func deliver(t *testing.T, to node, from signature.PublicKey, msg wire.Message) []wire.Envelope {
	var out []wire.Envelope
	var err error

	switch msg := msg.(type) {
	case wire.HalfBlock:
		out, err = to.state.ReceivedHalfBlock(from, msg.Block)
	case wire.FullBlock:
		out, err = to.state.ReceivedFullBlock(from, msg.Block, msg.Mate)
	case wire.Crawl:
		out, err = to.state.ReceivedCrawlRequest(from, msg.Sequence)
	case wire.Resume:
		out, err = to.state.ReceivedCrawlResume(from)
	}

	if err != nil {
		t.Fatalf("Should be able to handle %s: %s", msg.Tag(), err)
	}

	return out
}

// keys returns deterministic key pairs with the first greater than the
// second so the first one initiates.
func keys(t *testing.T) (signature.KeyPair, signature.KeyPair, signature.KeyPair) {
	var kps []signature.KeyPair
	for _, hexKey := range []string{
		"fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959",
		"9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93",
		"aed31b6b5a341af8f1f0f0d6ab8ea1d6f2e0a4c2b1c3d4e5f60718293a4b5c6d",
	} {
		kp, err := signature.HexToKeyPair(hexKey)
		if err != nil {
			t.Fatalf("Should be able to load key: %s", err)
		}
		kps = append(kps, kp)
	}

	a, b := kps[0], kps[1]
	if bytes.Compare(a.PublicKey[:], b.PublicKey[:]) < 0 {
		a, b = b, a
	}

	return a, b, kps[2]
}

func single(t *testing.T, envs []wire.Envelope, to signature.PublicKey) wire.HalfBlock {
	if len(envs) != 1 {
		t.Fatalf("Should get exactly one message, got %d.", len(envs))
	}
	if envs[0].Peer != to {
		t.Fatalf("Should address the message to %s, got %s.", to.Mid(), envs[0].Peer.Mid())
	}

	half, ok := envs[0].Message.(wire.HalfBlock)
	if !ok {
		t.Fatalf("Should get a HALF_BLOCK, got %s.", envs[0].Message.Tag())
	}

	return half
}

// =============================================================================

func Test_Signing(t *testing.T) {
	kpA, kpB, _ := keys(t)
	a := newNode(t, kpA)
	b := newNode(t, kpB)

	t.Log("Given the need to record interactions on both chains.")
	{
		var bA, bB database.Block

		t.Logf("\tTest 0:\tWhen the initiator signs a genesis half-block.")
		{
			block, err := a.state.SignBlock(kpB.PublicKey, 1024, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the block: %s", failed, err)
			}
			bA = block

			if bA.SequenceNumber != 1 || bA.PreviousHash != database.GenesisHash || bA.TotalUp != 1024 || bA.TotalDown != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould build a genesis block, got %s.", failed, bA)
			}
			if bA.LinkPublicKey != kpB.PublicKey || bA.LinkSequenceNumber != 0 || !bA.VerifySignature() {
				t.Fatalf("\t%s\tTest 0:\tShould address and sign the block, got %s.", failed, bA)
			}
			t.Logf("\t%s\tTest 0:\tShould build and sign a genesis block.", success)

			blocks, err := a.state.QueryBlocks(kpA.PublicKey, 0, 10)
			if err != nil || len(blocks) != 1 || blocks[0] != bA {
				t.Fatalf("\t%s\tTest 0:\tShould store exactly the one block: %v %v", failed, blocks, err)
			}
			t.Logf("\t%s\tTest 0:\tShould store exactly the one block.", success)

			half := single(t, a.out.take(), kpB.PublicKey)
			if half.Block != bA {
				t.Fatalf("\t%s\tTest 0:\tShould send the block to the counterparty.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould send the block to the counterparty.", success)

			if len(a.state.Pending()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould track the block as pending.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould track the block as pending.", success)
		}

		t.Logf("\tTest 1:\tWhen the counterparty countersigns.")
		{
			half := single(t, deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: bA}), kpA.PublicKey)
			bB = half.Block

			if bB.SequenceNumber != 1 || bB.Up != 0 || bB.Down != 1024 || bB.TotalUp != 0 || bB.TotalDown != 1024 {
				t.Fatalf("\t%s\tTest 1:\tShould mirror the amounts, got %s.", failed, bB)
			}
			if bB.LinkPublicKey != kpA.PublicKey || bB.LinkSequenceNumber != 1 || !bB.VerifySignature() {
				t.Fatalf("\t%s\tTest 1:\tShould link and sign the countersignature, got %s.", failed, bB)
			}
			t.Logf("\t%s\tTest 1:\tShould build the countersignature.", success)

			for _, blk := range []database.Block{bA, bB} {
				if exists, err := b.db.Contains(blk.Hash()); err != nil || !exists {
					t.Fatalf("\t%s\tTest 1:\tShould store %s on the counterparty: %v", failed, blk, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould store both blocks on the counterparty.", success)

			if out := deliver(t, a, kpB.PublicKey, wire.HalfBlock{Block: bB}); len(out) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould not answer a countersignature, got %d messages.", failed, len(out))
			}
			t.Logf("\t%s\tTest 1:\tShould not answer a countersignature.", success)

			if len(a.state.Pending()) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould clear the pending block.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould clear the pending block.", success)

			for _, n := range []node{a, b} {
				mate, err := n.db.GetLinked(bA)
				if err != nil || mate != bB {
					t.Fatalf("\t%s\tTest 1:\tShould pair the blocks on every node: %v", failed, err)
				}
				mate, err = n.db.GetLinked(bB)
				if err != nil || mate != bA {
					t.Fatalf("\t%s\tTest 1:\tShould pair the blocks on every node: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould pair the blocks on every node.", success)
		}

		t.Logf("\tTest 2:\tWhen the proposal arrives again.")
		{
			half := single(t, deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: bA}), kpA.PublicKey)
			if half.Block != bB {
				t.Fatalf("\t%s\tTest 2:\tShould send the stored countersignature again, got %s.", failed, half.Block)
			}

			latest, err := b.db.GetLatest(kpB.PublicKey)
			if err != nil || latest != bB {
				t.Fatalf("\t%s\tTest 2:\tShould not countersign twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould send the stored countersignature again.", success)
		}

		t.Logf("\tTest 3:\tWhen the initiator signs a second interaction.")
		{
			bA2, err := a.state.SignBlock(kpB.PublicKey, 500, 200)
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to sign the block: %s", failed, err)
			}

			if bA2.SequenceNumber != 2 || bA2.PreviousHash != bA.Hash() || bA2.TotalUp != 1524 || bA2.TotalDown != 200 {
				t.Fatalf("\t%s\tTest 3:\tShould extend the chain, got %s.", failed, bA2)
			}
			t.Logf("\t%s\tTest 3:\tShould extend the chain.", success)
		}

		t.Logf("\tTest 4:\tWhen asking the node for statistics.")
		{
			stats, err := a.state.GetStatistics(kpA.PublicKey)
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to get statistics: %s", failed, err)
			}

			if stats.TotalBlocks != 2 || stats.TotalUp != 1524 || stats.TotalDown != 200 || stats.PeersHelped != 1 || stats.PeersHelpedBy != 1 {
				t.Fatalf("\t%s\tTest 4:\tShould report the totals, got %+v.", failed, stats)
			}
			if stats.Latest == nil || stats.Latest.SequenceNumber != 2 || stats.Latest.InsertTime.IsZero() {
				t.Fatalf("\t%s\tTest 4:\tShould summarize the latest block, got %+v.", failed, stats.Latest)
			}
			t.Logf("\t%s\tTest 4:\tShould report the totals and the latest block.", success)

			stats, err = a.state.GetStatistics(signature.PublicKey{})
			if err != nil || stats.TotalBlocks != 0 || stats.Latest != nil {
				t.Fatalf("\t%s\tTest 4:\tShould report nothing for an unknown key: %+v %v", failed, stats, err)
			}
			t.Logf("\t%s\tTest 4:\tShould report nothing for an unknown key.", success)
		}
	}
}

func Test_SignRules(t *testing.T) {
	kpA, kpB, _ := keys(t)
	a := newNode(t, kpA)
	b := newNode(t, kpB)

	first, err := a.state.SignBlock(kpB.PublicKey, 10, 0)
	if err != nil {
		t.Fatalf("Should be able to sign the block: %s", err)
	}
	a.out.take()

	tt := []struct {
		name string
		node node
		to   signature.PublicKey
		up   uint64
		down uint64
		err  error
	}{
		{"lesserkey", b, kpA.PublicKey, 10, 0, state.ErrNotInitiator},
		{"self", a, kpA.PublicKey, 10, 0, state.ErrSelfInteraction},
		{"zero", a, kpB.PublicKey, 0, 0, state.ErrZeroInteraction},
		{"badkey", a, signature.PublicKey{}, 10, 0, signature.ErrInvalidPublicKey},
		{"pending", a, kpB.PublicKey, 5, 0, state.ErrPendingHalfBlock},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			if _, err := tst.node.state.SignBlock(tst.to, tst.up, tst.down); !errors.Is(err, tst.err) {
				t.Logf("Test %s:\tgot: %v", tst.name, err)
				t.Logf("Test %s:\texp: %v", tst.name, tst.err)
				t.Fatalf("Test %s:\tShould refuse to sign.", tst.name)
			}

			if len(tst.node.out.take()) != 0 {
				t.Fatalf("Test %s:\tShould not send anything.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}

	latest, err := a.db.GetLatest(kpA.PublicKey)
	if err != nil || latest != first {
		t.Fatalf("Should keep only the first block on the chain: %v %v", latest, err)
	}

	pending := a.state.Pending()
	if len(pending) != 1 || pending[0] != first {
		t.Fatalf("Should keep the first block pending, got %v.", pending)
	}
}

func Test_SignQueueFull(t *testing.T) {
	kpA, kpB, _ := keys(t)
	a := newNode(t, kpA)
	a.state.Worker = fullQueue{}

	t.Log("Given the need to report work that could not be queued.")
	{
		t.Logf("\tTest 0:\tWhen signing with a full queue.")
		{
			block, err := a.state.SignBlock(kpB.PublicKey, 1024, 0)
			if !errors.Is(err, state.ErrQueueFull) {
				t.Fatalf("\t%s\tTest 0:\tShould report the full queue, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report the full queue.", success)

			if block.SequenceNumber != 1 || !block.VerifySignature() {
				t.Fatalf("\t%s\tTest 0:\tShould still return the signed block, got %s.", failed, block)
			}

			if exists, err := a.db.Contains(block.Hash()); err != nil || !exists {
				t.Fatalf("\t%s\tTest 0:\tShould keep the block stored for the next crawl: %v", failed, err)
			}
			if len(a.state.Pending()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the block pending.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the block stored and pending.", success)
		}

		t.Logf("\tTest 1:\tWhen crawling with a full queue.")
		{
			if err := a.state.RequestCrawl(kpB.PublicKey, 0); !errors.Is(err, state.ErrQueueFull) {
				t.Fatalf("\t%s\tTest 1:\tShould report the full queue, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould report the full queue.", success)
		}
	}
}

func Test_Crawl(t *testing.T) {
	kpA, kpB, kpC := keys(t)
	a := newNode(t, kpA)
	b := newNode(t, kpB)
	c := newNode(t, kpC)

	bA, err := a.state.SignBlock(kpB.PublicKey, 1024, 0)
	if err != nil {
		t.Fatalf("Should be able to sign the block: %s", err)
	}
	bB := single(t, deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: bA}), kpA.PublicKey).Block
	deliver(t, a, kpB.PublicKey, wire.HalfBlock{Block: bB})

	bA2, err := a.state.SignBlock(kpB.PublicKey, 500, 200)
	if err != nil {
		t.Fatalf("Should be able to sign the block: %s", err)
	}
	a.out.take()

	t.Log("Given the need to replicate a chain to a third node.")
	{
		t.Logf("\tTest 0:\tWhen crawling from scratch.")
		{
			if err := c.state.RequestCrawl(kpA.PublicKey, 0); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to request the crawl: %s", failed, err)
			}

			sent := c.out.take()
			if len(sent) != 1 || sent[0].Peer != kpA.PublicKey || sent[0].Message != (wire.Crawl{Sequence: 0}) {
				t.Fatalf("\t%s\tTest 0:\tShould send CRAWL(0) to the peer, got %v.", failed, sent)
			}
			t.Logf("\t%s\tTest 0:\tShould send CRAWL(0) to the peer.", success)

			resp := deliver(t, a, kpC.PublicKey, wire.Crawl{Sequence: 0})

			exp := []wire.Message{
				wire.FullBlock{Block: bA, Mate: bB},
				wire.HalfBlock{Block: bA2},
				wire.Resume{},
			}
			if len(resp) != len(exp) {
				t.Fatalf("\t%s\tTest 0:\tShould respond with %d messages, got %d.", failed, len(exp), len(resp))
			}
			for i := range exp {
				if resp[i].Peer != kpC.PublicKey || resp[i].Message != exp[i] {
					t.Fatalf("\t%s\tTest 0:\tShould respond with %s at %d, got %s.", failed, exp[i].Tag(), i, resp[i].Message.Tag())
				}
			}
			t.Logf("\t%s\tTest 0:\tShould respond with the full history and RESUME.", success)

			var next []wire.Envelope
			for _, env := range resp {
				next = append(next, deliver(t, c, kpA.PublicKey, env.Message)...)
			}

			tt := []struct {
				block database.Block
				exp   database.Verdict
			}{
				{bA, database.Valid},
				{bA2, database.PartialNext},
				{bB, database.Valid},
			}
			for _, tst := range tt {
				result, err := database.Validate(tst.block, c.db)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to validate: %s", failed, err)
				}
				if result.Verdict != tst.exp {
					t.Fatalf("\t%s\tTest 0:\tShould see %s as %s, got %s.", failed, tst.block, tst.exp, result)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould hold the replicated blocks.", success)

			if len(next) != 1 || next[0].Message != (wire.Crawl{Sequence: 2}) {
				t.Fatalf("\t%s\tTest 0:\tShould continue the crawl from 2 on RESUME, got %v.", failed, next)
			}
			t.Logf("\t%s\tTest 0:\tShould continue the crawl on RESUME.", success)

			resp = deliver(t, a, kpC.PublicKey, next[0].Message)
			if len(resp) != 1 || resp[0].Message != (wire.HalfBlock{Block: bA2}) {
				t.Fatalf("\t%s\tTest 0:\tShould send only the last block without RESUME, got %d messages.", failed, len(resp))
			}
			t.Logf("\t%s\tTest 0:\tShould send only the last block without RESUME.", success)
		}

		t.Logf("\tTest 1:\tWhen a RESUME arrives without a crawl.")
		{
			if out := deliver(t, b, kpA.PublicKey, wire.Resume{}); len(out) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould drop the RESUME, got %d messages.", failed, len(out))
			}
			t.Logf("\t%s\tTest 1:\tShould drop the RESUME.", success)
		}

		t.Logf("\tTest 2:\tWhen the pair does not match.")
		{
			if out := deliver(t, c, kpA.PublicKey, wire.FullBlock{Block: bA, Mate: bA2}); len(out) != 0 {
				t.Fatalf("\t%s\tTest 2:\tShould drop the pair, got %d messages.", failed, len(out))
			}
			t.Logf("\t%s\tTest 2:\tShould drop the pair.", success)
		}
	}
}

func Test_CrawlCap(t *testing.T) {
	kpA, kpB, kpC := keys(t)
	a := newNode(t, kpA)
	c := newNode(t, kpC)

	const chainLen = state.MaxCrawlBatch + 20

	var chain []database.Block
	for i := 0; i < chainLen; i++ {
		block, err := database.CreateNext(a.db, kpA.PublicKey, kpB.PublicKey, 1, 0)
		if err != nil {
			t.Fatalf("Should be able to create the block: %s", err)
		}
		if block, err = block.Sign(kpA.Private); err != nil {
			t.Fatalf("Should be able to sign the block: %s", err)
		}
		if _, err := a.db.Add(block); err != nil {
			t.Fatalf("Should be able to add the block: %s", err)
		}
		chain = append(chain, block)
	}

	t.Log("Given the need to bound crawl batches.")
	{
		t.Logf("\tTest 0:\tWhen answering a crawl of a long chain.")
		{
			resp := deliver(t, a, kpC.PublicKey, wire.Crawl{Sequence: 0})

			if len(resp) != state.MaxCrawlBatch+1 {
				t.Fatalf("\t%s\tTest 0:\tShould send %d blocks and RESUME, got %d messages.", failed, state.MaxCrawlBatch, len(resp))
			}
			if _, ok := resp[len(resp)-1].Message.(wire.Resume); !ok {
				t.Fatalf("\t%s\tTest 0:\tShould end the batch with RESUME.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould send %d blocks and RESUME.", success, state.MaxCrawlBatch)
		}

		t.Logf("\tTest 1:\tWhen the peer sends more than a batch.")
		{
			if err := c.state.RequestCrawl(kpA.PublicKey, 0); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to request the crawl: %s", failed, err)
			}

			for _, block := range chain {
				deliver(t, c, kpA.PublicKey, wire.HalfBlock{Block: block})
			}

			latest, err := c.db.GetLatest(kpA.PublicKey)
			if err != nil || latest.SequenceNumber != state.MaxCrawlBatch {
				t.Fatalf("\t%s\tTest 1:\tShould keep only the first %d blocks: %v %v", failed, state.MaxCrawlBatch, latest, err)
			}
			t.Logf("\t%s\tTest 1:\tShould keep only the first %d blocks.", success, state.MaxCrawlBatch)

			next := deliver(t, c, kpA.PublicKey, wire.Resume{})
			if len(next) != 1 || next[0].Message != (wire.Crawl{Sequence: state.MaxCrawlBatch}) {
				t.Fatalf("\t%s\tTest 1:\tShould continue from the latest block, got %v.", failed, next)
			}
			t.Logf("\t%s\tTest 1:\tShould continue from the latest block.", success)
		}

		t.Logf("\tTest 2:\tWhen a proposal arrives after the batch is used up.")
		{
			if err := c.state.RequestCrawl(kpA.PublicKey, 0); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to request the crawl: %s", failed, err)
			}

			for _, block := range chain {
				deliver(t, c, kpA.PublicKey, wire.HalfBlock{Block: block})
			}

			next, err := database.CreateNext(a.db, kpA.PublicKey, kpC.PublicKey, 5, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to create the proposal: %s", failed, err)
			}
			if next, err = next.Sign(kpA.Private); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to sign the proposal: %s", failed, err)
			}

			half := single(t, deliver(t, c, kpA.PublicKey, wire.HalfBlock{Block: next}), kpA.PublicKey)
			if half.Block.LinkPublicKey != kpA.PublicKey || half.Block.LinkSequenceNumber != next.SequenceNumber {
				t.Fatalf("\t%s\tTest 2:\tShould countersign the proposal, got %s.", failed, half.Block)
			}
			t.Logf("\t%s\tTest 2:\tShould countersign the proposal.", success)
		}
	}
}

func Test_Fraud(t *testing.T) {
	kpA, kpB, _ := keys(t)
	a := newNode(t, kpA)
	b := newNode(t, kpB)

	t.Log("Given the need to detect conflicting blocks.")
	{
		t.Logf("\tTest 0:\tWhen the author signs two blocks at one sequence number.")
		{
			bA, err := a.state.SignBlock(kpB.PublicKey, 1024, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the block: %s", failed, err)
			}

			forged := bA
			forged.Up, forged.TotalUp = 99999, 99999
			if forged, err = forged.Sign(kpA.Private); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the forged block: %s", failed, err)
			}

			out := deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: bA})
			if len(out) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould countersign the first block.", failed)
			}
			deliver(t, a, kpB.PublicKey, out[0].Message)

			if out := deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: forged}); len(out) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not countersign the second block, got %d messages.", failed, len(out))
			}
			t.Logf("\t%s\tTest 0:\tShould not countersign the second block.", success)

			if exists, err := b.db.Contains(forged.Hash()); err != nil || exists {
				t.Fatalf("\t%s\tTest 0:\tShould not store the second block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not store the second block.", success)

			frauds, err := b.state.QueryFrauds(kpA.PublicKey)
			if err != nil || len(frauds) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould record the fraud: %v %v", failed, frauds, err)
			}
			if frauds[0].Kind != database.FraudDoubleSign || frauds[0].Existing != bA || frauds[0].Offending != forged {
				t.Fatalf("\t%s\tTest 0:\tShould keep both blocks as evidence, got %+v.", failed, frauds[0])
			}
			t.Logf("\t%s\tTest 0:\tShould record the fraud with both blocks.", success)

			stats, err := b.state.GetStatistics(kpA.PublicKey)
			if err != nil || stats.Frauds != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould count the fraud in the statistics: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould count the fraud in the statistics.", success)

			result, err := database.Validate(bA, b.db)
			if err != nil || result.Verdict != database.Invalid {
				t.Fatalf("\t%s\tTest 0:\tShould see the kept block as invalid now: %s %v", failed, result, err)
			}
			t.Logf("\t%s\tTest 0:\tShould see the kept block as invalid now.", success)

			if out := deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: bA}); len(out) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not answer the kept block again, got %d messages.", failed, len(out))
			}
			if frauds, err := b.state.QueryFrauds(kpA.PublicKey); err != nil || len(frauds) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould not record the evidence again: %v %v", failed, frauds, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not record the evidence again.", success)
		}

		t.Logf("\tTest 1:\tWhen the totals are tampered with.")
		{
			d1, err := a.state.SignBlock(kpB.PublicKey, 10, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to sign the block: %s", failed, err)
			}
			deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: d1})

			fake := database.Block{
				Up:             500,
				TotalUp:        100,
				PublicKey:      kpA.PublicKey,
				SequenceNumber: d1.SequenceNumber + 1,
				LinkPublicKey:  kpB.PublicKey,
				PreviousHash:   d1.Hash(),
			}
			if fake, err = fake.Sign(kpA.Private); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to sign the fake block: %s", failed, err)
			}

			result, err := database.Validate(fake, b.db)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to validate: %s", failed, err)
			}
			if result.Verdict != database.Invalid || !contains(result.Reasons, database.ReasonPrevUpLower) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the totals, got %s.", failed, result)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the totals.", success)

			if out := deliver(t, b, kpA.PublicKey, wire.HalfBlock{Block: fake}); len(out) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould not countersign the fake block.", failed)
			}
			if exists, err := b.db.Contains(fake.Hash()); err != nil || exists {
				t.Fatalf("\t%s\tTest 1:\tShould not store the fake block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould drop the fake block.", success)
		}
	}
}

func contains(reasons []string, reason string) bool {
	for _, r := range reasons {
		if r == reason {
			return true
		}
	}
	return false
}
