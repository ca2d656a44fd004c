// Command raftqueue-node runs a single cluster member: it loads a
// NodeConfig, constructs the Raft engine, wires remote peers over HTTP,
// and serves the transport until interrupted.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	raft "github.com/s-rishu/raftqueue"
	rafthttp "github.com/s-rishu/raftqueue/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
		devLogging bool
	)

	cmd := &cobra.Command{
		Use:   "raftqueue-node",
		Short: "Run one member of a raftqueue cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, listenAddr, devLogging)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "raftqueue.yaml", "path to node config YAML")
	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address to serve the HTTP transport on")
	cmd.Flags().BoolVar(&devLogging, "dev", false, "use human-readable development logging")

	return cmd
}

func run(configPath, listenAddr string, devLogging bool) error {
	cfg, err := raft.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("raftqueue-node: %w", err)
	}

	logger, err := newLogger(devLogging)
	if err != nil {
		return fmt.Errorf("raftqueue-node: building logger: %w", err)
	}
	defer logger.Sync()

	node := raft.NewServer(cfg, logger)

	peers := make(raft.Peers, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if p.Id == cfg.Id {
			peers[p.Id] = raft.NewLocalPeer(node)
			continue
		}
		peers[p.Id] = rafthttp.NewClient(p.Id, p.Address, cfg.HeartbeatTimeout())
	}
	node.SetPeers(peers)
	node.Start()
	defer node.Stop()

	httpServer := rafthttp.NewServer(cfg.Id, node, logger)
	router := mux.NewRouter()
	httpServer.Install(router)

	srv := &http.Server{Addr: listenAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("node started", zap.String("listen", listenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("raftqueue-node: http server: %w", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
