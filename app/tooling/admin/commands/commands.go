// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// ErrHelp is returned when no known command was given.
var ErrHelp = errors.New("provide a command")

// pageSize is how many blocks are read from the store at a time.
const pageSize = 100

// Chain prints every stored block of the chain with the verdict the
// validator gives it against the rest of the store.
func Chain(w io.Writer, pubkey string, db *database.Database) error {
	pk, err := signature.ToPublicKey(pubkey)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tLINK\tLINK SEQ\tUP\tDOWN\tTOTAL UP\tTOTAL DOWN\tVERDICT\tREASONS")

	var count int
	for seq := database.GenesisSequence; ; {
		blocks, err := db.GetBlocksSince(pk, seq, pageSize)
		if err != nil {
			return err
		}

		for _, block := range blocks {
			result, err := database.Validate(block, db)
			if err != nil {
				return err
			}

			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%v\n",
				block.SequenceNumber, block.LinkPublicKey.Mid(), block.LinkSequenceNumber,
				block.Up, block.Down, block.TotalUp, block.TotalDown, result.Verdict, result.Reasons)
			count++
		}

		if len(blocks) < pageSize {
			break
		}

		last := blocks[len(blocks)-1].SequenceNumber
		if last == math.MaxUint32 {
			break
		}
		seq = last + 1
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d blocks for %s\n", count, pk.Mid())
	return nil
}

// Frauds prints the evidence the store holds against the key.
func Frauds(w io.Writer, pubkey string, db *database.Database) error {
	pk, err := signature.ToPublicKey(pubkey)
	if err != nil {
		return err
	}

	frauds, err := db.Frauds(pk)
	if err != nil {
		return err
	}

	for _, fraud := range frauds {
		fmt.Fprintf(w, "%s  %s\n  existing:  %s\n  offending: %s\n", fraud.Time.Format("2006-01-02 15:04:05"), fraud.Kind, fraud.Existing, fraud.Offending)
	}

	fmt.Fprintf(w, "\n%d frauds for %s\n", len(frauds), pk.Mid())
	return nil
}
