package sqlite

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func open(t *testing.T, path string) *SQLite {
	strg, err := New(path)
	if err != nil {
		t.Fatalf("Should be able to open the store: %s", err)
	}

	return strg
}

// rewrite runs statements against the file the way other code versions
// would have left it.
func rewrite(t *testing.T, path string, stmts ...string) {
	strg := open(t, path)
	defer strg.Close()

	for _, stmt := range stmts {
		if _, err := strg.db.Exec(stmt); err != nil {
			t.Fatalf("Should be able to run %q: %s", stmt, err)
		}
	}
}

func Test_Schema(t *testing.T) {
	t.Log("Given the need to open stores written by other versions.")
	{
		t.Logf("\tTest 0:\tWhen the store was written by an older version.")
		{
			path := filepath.Join(t.TempDir(), "chain.sqlite")
			rewrite(t, path,
				"DROP TABLE frauds",
				"UPDATE option SET value = '1' WHERE key = 'database_version'",
			)

			strg := open(t, path)
			defer strg.Close()

			if strg.Version() != database.SchemaVersion || strg.ReadOnly() {
				t.Fatalf("\t%s\tTest 0:\tShould upgrade to version %d, got %d.", failed, database.SchemaVersion, strg.Version())
			}
			t.Logf("\t%s\tTest 0:\tShould upgrade to version %d.", success, database.SchemaVersion)

			if err := strg.WriteFraud(database.Fraud{Kind: database.FraudDoubleSign}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to use the new table: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to use the new table.", success)
		}

		t.Logf("\tTest 1:\tWhen the store was written by a newer version.")
		{
			path := filepath.Join(t.TempDir(), "chain.sqlite")
			newer := strconv.Itoa(database.SchemaVersion + 1)
			rewrite(t, path, "UPDATE option SET value = '"+newer+"' WHERE key = 'database_version'")

			strg := open(t, path)
			defer strg.Close()

			if !strg.ReadOnly() || strg.Version() != database.SchemaVersion+1 {
				t.Fatalf("\t%s\tTest 1:\tShould open the store read only.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould open the store read only.", success)

			db := database.New(strg)
			if _, err := db.Add(database.Block{}); !errors.Is(err, database.ErrReadOnly) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse writes, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse writes.", success)
		}
	}
}
