package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/multichain/app/services/node/handlers"
	"github.com/ardanlabs/multichain/foundation/events"
	"github.com/ardanlabs/multichain/foundation/logger"
	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage"
	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/router"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/multichain/transport"
	"github.com/ardanlabs/multichain/foundation/multichain/worker"
	"github.com/ardanlabs/multichain/foundation/nameservice"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:127.0.0.1:9080"`
		}
		Node struct {
			KeyPath        string        `conf:"default:zblock/node.ecdsa"`
			P2PHost        string        `conf:"default:0.0.0.0:6080"`
			DBDriver       string        `conf:"default:bolt"`
			DBPath         string        `conf:"default:zblock/multichain.db"`
			PeersFile      string        `conf:"default:zblock/peers.toml"`
			CrawlInterval  time.Duration `conf:"default:1m"`
			QueueSize      int           `conf:"default:1024"`
			CrawlOnConnect bool          `conf:"default:true"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/keys/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for public keys.
	// The names come from the file names in the configured folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load name service: %w", err)
	}

	// Logging the names for documentation in the logs.
	for publicKey, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "mid", publicKey.Mid())
	}

	// =========================================================================
	// Multichain Support

	// The node's identity. A key is generated on first start.
	keyPair, err := loadKeyPair(cfg.Node.KeyPath)
	if err != nil {
		return err
	}
	log.Infow("startup", "status", "identity", "public_key", keyPair.PublicKey, "mid", keyPair.PublicKey.Mid())

	strg, err := storage.Open(cfg.Node.DBDriver, cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("opening chain store: %w", err)
	}
	db := database.New(strg)

	// A peer set is the collection of nodes this node can reach by public
	// key. The bootstrap list comes from the peers file.
	peerSet := peer.NewPeerSet()
	peers, err := peer.LoadFile(cfg.Node.PeersFile)
	switch {
	case err == nil:
		for _, p := range peers {
			peerSet.Add(p)
		}
	case errors.Is(err, fs.ErrNotExist):
		log.Infow("startup", "status", "no peers file", "path", cfg.Node.PeersFile)
	default:
		db.Close()
		return fmt.Errorf("loading peers: %w", err)
	}

	// The multichain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the multichain node and manages the chain
	// database and provides an API for application support.
	st, err := state.New(state.Config{
		KeyPair:    keyPair,
		Database:   db,
		KnownPeers: peerSet,
		EvHandler:  ev,
	})
	if err != nil {
		db.Close()
		return err
	}
	defer st.Shutdown()

	tr := transport.New(transport.Config{
		Host:      cfg.Node.P2PHost,
		KeyPair:   keyPair,
		EvHandler: ev,
	})

	rtr := router.New(router.Config{
		Handlers:   st,
		KnownPeers: peerSet,
		Transport:  tr,
		EvHandler:  ev,
	})

	// The worker package runs every protocol task and the periodic crawls.
	// The worker will register itself with the state and the router.
	wrk := worker.Run(st, rtr, worker.Config{
		QueueSize:      cfg.Node.QueueSize,
		CrawlInterval:  cfg.Node.CrawlInterval,
		CrawlOnConnect: cfg.Node.CrawlOnConnect,
		EvHandler:      ev,
	})

	if err := tr.Start(rtr.Receive, rtr.Connected); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	defer tr.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	muxCfg := handlers.MuxConfig{
		Shutdown:  shutdown,
		Log:       log,
		State:     st,
		Transport: tr,
		Worker:    wrk,
		NS:        ns,
		Evts:      evts,
	}

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      handlers.PublicMux(muxCfg),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      handlers.PrivateMux(muxCfg),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// =============================================================================

// loadKeyPair reads the node key, generating and saving one when the file
// doesn't exist yet.
func loadKeyPair(path string) (signature.KeyPair, error) {
	kp, err := signature.LoadKeyPair(path)
	if err == nil {
		return kp, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return signature.KeyPair{}, fmt.Errorf("unable to load node key: %w", err)
	}

	if kp, err = signature.GenerateKey(); err != nil {
		return signature.KeyPair{}, fmt.Errorf("unable to generate node key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return signature.KeyPair{}, err
	}

	if err := signature.SaveKeyPair(path, kp); err != nil {
		return signature.KeyPair{}, fmt.Errorf("unable to save node key: %w", err)
	}

	return kp, nil
}
