package database

import (
	"errors"
	"strings"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// Verdict is the confidence the validator has in a block.
type Verdict int

// Set of verdicts, from the most to the least confident.
const (
	Valid Verdict = iota
	PartialPrevious
	PartialNext
	Partial
	NoInfo
	Invalid
)

var verdictNames = map[Verdict]string{
	Valid:           "valid",
	PartialPrevious: "partial_previous",
	PartialNext:     "partial_next",
	Partial:         "partial",
	NoInfo:          "no_info",
	Invalid:         "invalid",
}

// String implements the Stringer interface.
func (v Verdict) String() string {
	if name, exists := verdictNames[v]; exists {
		return name
	}
	return "unknown"
}

// Reasons reported by the validator. The fraud reasons are matched by the
// node to record evidence.
const (
	ReasonUpDownZero        = "Up and down are zero"
	ReasonSeqPriorGenesis   = "Sequence number is prior to genesis"
	ReasonPublicKey         = "Public key is not valid"
	ReasonLinkPublicKey     = "Linked public key is not valid"
	ReasonSignature         = "Invalid signature"
	ReasonSelfSigned        = "Self signed block"
	ReasonGenesisHash       = "Sequence number implies previous hash should be Genesis ID"
	ReasonNotGenesisHash    = "Sequence number implies previous hash should not be Genesis ID"
	ReasonGenesisUp         = "Genesis block invalid total_up and/or up"
	ReasonGenesisDown       = "Genesis block invalid total_down and/or down"
	ReasonDoubleSign        = "Fraud: double sign"
	ReasonDoubleCountersign = "Fraud: double countersign"
	ReasonLinkUpDown        = "Up/down mismatch on linked block"
	ReasonLinkDownUp        = "Down/up mismatch on linked block"
	ReasonPrevUpLower       = "Total up is lower than expected compared to the preceding block"
	ReasonPrevDownLower     = "Total down is lower than expected compared to the preceding block"
	ReasonPrevUpHigher      = "Total up is higher than expected compared to the preceding block"
	ReasonPrevDownHigher    = "Total down is higher than expected compared to the preceding block"
	ReasonNextUpHigher      = "Total up is higher than expected compared to the next block"
	ReasonNextDownHigher    = "Total down is higher than expected compared to the next block"
	ReasonNextUpLower       = "Total up is lower than expected compared to the next block"
	ReasonNextDownLower     = "Total down is lower than expected compared to the next block"
	ReasonPrevHash          = "Previous hash is not equal to the hash id of the previous block"
	ReasonNextHash          = "Next hash is not equal to the hash id of the block"
)

// ValidationResult is the verdict on a block and every reason found when
// the verdict is Invalid.
type ValidationResult struct {
	Verdict Verdict
	Reasons []string
}

// Fraud reports the fraud kind behind the verdict, if any.
func (vr ValidationResult) Fraud() (FraudKind, bool) {
	for _, reason := range vr.Reasons {
		switch reason {
		case ReasonDoubleSign:
			return FraudDoubleSign, true
		case ReasonDoubleCountersign:
			return FraudDoubleCountersign, true
		}
	}

	return "", false
}

// String implements the Stringer interface for logging.
func (vr ValidationResult) String() string {
	if len(vr.Reasons) == 0 {
		return vr.Verdict.String()
	}

	return vr.Verdict.String() + ": " + strings.Join(vr.Reasons, "; ")
}

func (vr *ValidationResult) fail(reason string) {
	vr.Verdict = Invalid
	vr.Reasons = append(vr.Reasons, reason)
}

// =============================================================================

// evidence is everything the store knows that is relevant to a block.
type evidence struct {
	existing *Block
	linked   *Block
	prev     *Block
	next     *Block
	links    []Block
	frauds   []Fraud
}

// Validate checks the block against itself and against whatever the reader
// knows about its chain and its mate. Every violation is collected. The
// reader is never mutated. Errors are only returned for storage failures.
func Validate(block Block, db Reader) (ValidationResult, error) {
	ev, err := gatherEvidence(block, db)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{
		Verdict: confidence(block, ev),
	}

	signatureOK := checkSelf(block, &result)
	checkExisting(block, ev, signatureOK, &result)
	checkLinked(block, ev, &result)
	checkPrevious(block, ev, &result)
	checkNext(block, ev, &result)
	checkRecorded(block, ev, &result)

	return result, nil
}

func gatherEvidence(block Block, db Reader) (evidence, error) {
	var ev evidence

	fetch := func(f func() (Block, error)) (*Block, error) {
		b, err := f()
		switch {
		case err == nil:
			return &b, nil
		case errors.Is(err, ErrNotFound):
			return nil, nil
		default:
			return nil, err
		}
	}

	var err error
	if ev.existing, err = fetch(func() (Block, error) { return db.Get(block.PublicKey, block.SequenceNumber) }); err != nil {
		return evidence{}, err
	}
	if ev.linked, err = fetch(func() (Block, error) { return db.GetLinked(block) }); err != nil {
		return evidence{}, err
	}
	if ev.prev, err = fetch(func() (Block, error) { return db.GetBlockBefore(block) }); err != nil {
		return evidence{}, err
	}
	if ev.next, err = fetch(func() (Block, error) { return db.GetBlockAfter(block) }); err != nil {
		return evidence{}, err
	}

	if block.IsLinked() {
		if ev.links, err = db.GetLinksTo(block.LinkPublicKey, block.LinkSequenceNumber); err != nil {
			return evidence{}, err
		}
	}

	if ev.frauds, err = db.Frauds(block.PublicKey); err != nil {
		return evidence{}, err
	}

	return ev, nil
}

// confidence determines the best verdict possible with the neighbors that
// are known. Checks performed afterwards can only lower it to Invalid.
func confidence(block Block, ev evidence) Verdict {
	isGenesis := block.IsGenesis()
	prevGap := ev.prev == nil || ev.prev.SequenceNumber != block.SequenceNumber-1
	nextGap := ev.next != nil && ev.next.SequenceNumber != block.SequenceNumber+1

	if isGenesis {
		// Nothing can precede a genesis block. With no successor known it
		// is the whole chain as far as anyone can tell.
		if nextGap {
			return PartialNext
		}
		return Valid
	}

	if ev.prev == nil && ev.next == nil {
		return NoInfo
	}

	nextMissing := ev.next == nil || nextGap

	switch {
	case prevGap && nextMissing:
		return Partial
	case prevGap:
		return PartialPrevious
	case nextMissing:
		return PartialNext
	default:
		return Valid
	}
}

// checkSelf covers the invariants a block must satisfy on its own. It reports
// whether the signature verified.
func checkSelf(block Block, result *ValidationResult) bool {
	if block.Up == 0 && block.Down == 0 {
		result.fail(ReasonUpDownZero)
	}

	if block.SequenceNumber < GenesisSequence {
		result.fail(ReasonSeqPriorGenesis)
	}

	var signatureOK bool
	switch {
	case !signature.ValidPublicKey(block.PublicKey[:]):
		result.fail(ReasonPublicKey)

	case !block.VerifySignature():
		result.fail(ReasonSignature)

	default:
		signatureOK = true
	}

	if !signature.ValidPublicKey(block.LinkPublicKey[:]) {
		result.fail(ReasonLinkPublicKey)
	}

	if block.PublicKey == block.LinkPublicKey {
		result.fail(ReasonSelfSigned)
	}

	switch {
	case block.IsGenesis():
		if block.PreviousHash != GenesisHash {
			result.fail(ReasonGenesisHash)
		}
		if block.Up != block.TotalUp {
			result.fail(ReasonGenesisUp)
		}
		if block.Down != block.TotalDown {
			result.fail(ReasonGenesisDown)
		}

	case block.PreviousHash == GenesisHash:
		result.fail(ReasonNotGenesisHash)
	}

	return signatureOK
}

// checkExisting looks for a different block the author already signed at the
// same sequence number.
func checkExisting(block Block, ev evidence, signatureOK bool, result *ValidationResult) {
	if ev.existing == nil || !signatureOK {
		return
	}

	if ev.existing.Hash() != block.Hash() {
		result.fail(ReasonDoubleSign)
	}
}

// checkRecorded fails a block that is part of fraud evidence already on
// record, the block that was kept included.
func checkRecorded(block Block, ev evidence, result *ValidationResult) {
	hash := block.Hash()

	for _, fraud := range ev.frauds {
		if fraud.Existing.Hash() != hash && fraud.Offending.Hash() != hash {
			continue
		}

		reason := ReasonDoubleSign
		if fraud.Kind == FraudDoubleCountersign {
			reason = ReasonDoubleCountersign
		}

		for _, r := range result.Reasons {
			if r == reason {
				return
			}
		}
		result.fail(reason)
		return
	}
}

// checkLinked compares the block with its mate and with every other block the
// author signed that claims the same mate.
func checkLinked(block Block, ev evidence, result *ValidationResult) {
	if ev.linked != nil {
		if block.Up != ev.linked.Down {
			result.fail(ReasonLinkUpDown)
		}
		if block.Down != ev.linked.Up {
			result.fail(ReasonLinkDownUp)
		}
	}

	for _, other := range ev.links {
		if other.PublicKey != block.PublicKey || other.SequenceNumber == block.SequenceNumber {
			continue
		}

		result.fail(ReasonDoubleCountersign)
		return
	}
}

// checkPrevious checks the totals and the hash chain against the nearest
// preceding block.
func checkPrevious(block Block, ev evidence, result *ValidationResult) {
	if ev.prev == nil {
		return
	}
	prev := ev.prev
	contiguous := prev.SequenceNumber == block.SequenceNumber-1

	if exceeds(prev.TotalUp, block.Up, block.TotalUp) {
		result.fail(ReasonPrevUpLower)
	} else if contiguous && prev.TotalUp+block.Up != block.TotalUp {
		result.fail(ReasonPrevUpHigher)
	}

	if exceeds(prev.TotalDown, block.Down, block.TotalDown) {
		result.fail(ReasonPrevDownLower)
	} else if contiguous && prev.TotalDown+block.Down != block.TotalDown {
		result.fail(ReasonPrevDownHigher)
	}

	if contiguous && prev.Hash() != block.PreviousHash {
		result.fail(ReasonPrevHash)
	}
}

// checkNext checks the totals and the hash chain against the nearest
// following block.
func checkNext(block Block, ev evidence, result *ValidationResult) {
	if ev.next == nil {
		return
	}
	next := ev.next
	contiguous := next.SequenceNumber == block.SequenceNumber+1

	if exceeds(block.TotalUp, next.Up, next.TotalUp) {
		result.fail(ReasonNextUpHigher)
	} else if contiguous && block.TotalUp+next.Up != next.TotalUp {
		result.fail(ReasonNextUpLower)
	}

	if exceeds(block.TotalDown, next.Down, next.TotalDown) {
		result.fail(ReasonNextDownHigher)
	} else if contiguous && block.TotalDown+next.Down != next.TotalDown {
		result.fail(ReasonNextDownLower)
	}

	if contiguous && next.PreviousHash != block.Hash() {
		result.fail(ReasonNextHash)
	}
}

// exceeds reports whether a+b is larger than total without overflowing.
func exceeds(a, b, total uint64) bool {
	return b > total || a > total-b
}
