package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/silvergate/relaynet/internal/logging"
	"github.com/silvergate/relaynet/internal/metrics"
	"github.com/silvergate/relaynet/pkg/transport"
)

const version = "1.0.0"

type flags struct {
	host        string
	port        int
	v6          string
	maxPlayers  int
	protocol    byte
	description string
	metricsAddr string
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:     "relayserver",
		Short:   "Reliable UDP transport relay server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	root.Flags().StringVar(&f.host, "host", "0.0.0.0", "IPv4 bind address")
	root.Flags().IntVar(&f.port, "port", 19132, "UDP port")
	root.Flags().StringVar(&f.v6, "host6", "", "IPv6 bind address, empty disables IPv6")
	root.Flags().IntVar(&f.maxPlayers, "max-players", 1000, "maximum connected sessions")
	root.Flags().Uint8Var(&f.protocol, "protocol-version", 11, "expected client protocol version")
	root.Flags().StringVar(&f.description, "description", "A relaynet server", "server description advertised in unconnected pong")
	root.Flags().StringVar(&f.metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus /metrics on, empty disables it")

	if err := root.Execute(); err != nil {
		logging.Fatal("%v", err)
	}
}

func run(f *flags) error {
	logging.Banner("relaynet - reliable UDP transport", version)

	cfg := transport.DefaultConfig()
	cfg.MaxPlayers = f.maxPlayers
	cfg.ProtocolVersion = f.protocol
	cfg.Description = f.description

	logging.Section("Configuration")
	logging.Infof("Bind: %s:%d", f.host, f.port)
	logging.Infof("Max players: %d", cfg.MaxPlayers)
	logging.Infof("Protocol version: %d", cfg.ProtocolVersion)
	logging.Success("Configuration loaded")

	addr := &net.UDPAddr{IP: net.ParseIP(f.host), Port: f.port}
	var addr6 *net.UDPAddr
	if f.v6 != "" {
		addr6 = &net.UDPAddr{IP: net.ParseIP(f.v6), Port: f.port}
	}

	app := &noopApplication{log: logging.Named("app")}
	dispatcherLog := logging.Named("dispatcher")

	d, err := transport.NewDispatcher(cfg, addr, addr6, app, dispatcherLog)
	if err != nil {
		return err
	}

	if f.metricsAddr != "" {
		go func() {
			logging.Infof("Metrics listening on %s", f.metricsAddr)
			if err := metrics.Serve(f.metricsAddr); err != nil {
				logging.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Warnf("Received signal: %v", sig)
		logging.Infof("Shutting down gracefully...")
		cancel()
		for _, s := range d.Registry().KickAll(transport.KickRequested) {
			d.SendDisconnect(s)
		}
		time.Sleep(500 * time.Millisecond)
		logging.Success("Server stopped")
	}
	return nil
}

// noopApplication is the default ApplicationHandler wired by the CLI
// entrypoint: it exercises the transport layer end-to-end with logging
// only, leaving the actual application protocol as an external seam.
type noopApplication struct {
	log *logging.Logger
}

func (a *noopApplication) OnConnect(s *transport.Session) {
	a.log.Infof("session connected: %s", s)
}

func (a *noopApplication) OnPayload(s *transport.Session, payload []byte) {
	a.log.Debugf("payload from %s: %d bytes", s, len(payload))
}

func (a *noopApplication) OnDisconnect(s *transport.Session, reason transport.KickReason) {
	a.log.Infof("session disconnected: %s reason=%s", s, reason)
}
