// lnchand is a thin composition root demonstrating how the library pieces
// wire together: config, logging, the sqlite store, and bootstrap. It is
// not a network-capable daemon -- the wire codec is out of scope -- so it
// never opens a listener.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/lightningd-go/lnchand/bootstrap"
	"github.com/lightningd-go/lnchand/channeldb"
	"github.com/lightningd-go/lnchand/config"
	"github.com/lightningd-go/lnchand/lnlog"
)

func lnchandMain() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := lnlog.InitLogRotator(
		fmt.Sprintf("%s/lnchand.log", cfg.LogDir),
		cfg.MaxLogFileSizeKB, cfg.MaxLogFiles,
	); err != nil {
		return fmt.Errorf("initializing log rotator: %w", err)
	}
	defer lnlog.Close()
	lnlog.SetLogLevels(cfg.LogLevel)

	store, err := channeldb.New(&channeldb.Config{Path: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	lnlog.BootLog.Infof("lnchand starting, db=%s", cfg.DBPath)

	peers, err := store.Peers()
	if err != nil {
		return fmt.Errorf("loading peers: %w", err)
	}

	ctx := context.Background()
	resolve := bootstrap.DNSResolver([]string{"8.8.8.8:53"})

	for _, p := range peers {
		_, addr, err := store.PeerAddress(p.PeerPubkey)
		if err != nil {
			lnlog.BootLog.Warnf("peer %x has no stored address, skipping", p.PeerPubkey)
			continue
		}

		peerPubkey := p.PeerPubkey
		req := bootstrap.NewRequest(addr, "9735", bootstrap.TCPDialer, resolve,
			func(conn net.Conn) {
				lnlog.BootLog.Infof("connected to peer %x via %s", peerPubkey, conn.RemoteAddr())
			},
			func(err error) {
				lnlog.BootLog.Warnf("bootstrap failed for peer %x: %v", peerPubkey, err)
			},
		)
		req.Start(ctx)
	}

	lnlog.BootLog.Info("lnchand composition root idle; no wire listener in scope")
	return nil
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := lnchandMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
