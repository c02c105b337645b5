// This program inspects a node's chain store while the node is stopped.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/multichain/app/tooling/admin/commands"
	"github.com/ardanlabs/multichain/foundation/logger"
	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("startup", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args conf.Args
		DB   struct {
			Driver string `conf:"default:bolt"`
			Path   string `conf:"default:zblock/multichain.db"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	strg, err := storage.Open(cfg.DB.Driver, cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening chain store: %w", err)
	}

	db := database.New(strg)
	defer db.Close()

	log.Infow("admin", "driver", cfg.DB.Driver, "path", cfg.DB.Path, "readonly", strg.ReadOnly())

	return processCommands(cfg.Args, db)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, db *database.Database) error {
	switch args.Num(0) {
	case "chain":
		if err := commands.Chain(os.Stdout, args.Num(1), db); err != nil {
			return fmt.Errorf("listing chain: %w", err)
		}
	case "frauds":
		if err := commands.Frauds(os.Stdout, args.Num(1), db); err != nil {
			return fmt.Errorf("listing frauds: %w", err)
		}
	default:
		fmt.Println("chain <pubkey>:  list the blocks of a chain with their verdict")
		fmt.Println("frauds <pubkey>: list the fraud evidence against a key")
		return commands.ErrHelp
	}

	return nil
}
