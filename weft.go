// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/decred/go-socks/socks"

	"github.com/weftnet/weft/internal/version"
	"github.com/weftnet/weft/mesh"
	"github.com/weftnet/weft/tcpio"
	"github.com/weftnet/weft/wsio"
)

var cfg *config

// newTransport builds the transport selected by the configuration.
func newTransport() mesh.Transport {
	if cfg.WebSocket {
		return wsio.New(nil)
	}

	tcpCfg := tcpio.Config{}
	if cfg.Proxy != "" {
		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		tcpCfg.Dial = proxy.Dial
	}
	return tcpio.New(&tcpCfg)
}

// weftMain is the real main function for weft.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func weftMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer weftLog.Info("Shutdown complete")

	// Show version at startup.
	weftLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)

	m := mesh.New(newTransport(), cfg.Listen)
	weftLog.Infof("Overlay identity: %s", m.ID())

	m.AddConnectionListener(func(m *mesh.Manager, p *mesh.Peer) {
		weftLog.Infof("Peer joined: %v (%d members)", p,
			len(m.Peers()))
	})
	m.AddDisconnectionListener(func(m *mesh.Manager, p *mesh.Peer) {
		weftLog.Infof("Peer left: %v (%d members)", p.ID,
			len(m.Peers()))
	})
	m.AddDataListener(func(m *mesh.Manager, from *mesh.Peer, data []byte,
		sentToAll bool) {

		kind := "unicast"
		if sentToAll {
			kind = "broadcast"
		}
		weftLog.Infof("Received %d byte %s from %v: %s", len(data),
			kind, from.ID, data)
	})

	// Start a new overlay, or join an existing one when a seed was
	// provided.
	if cfg.Connect != "" {
		host, port, err := normalizeSeed(cfg.Connect)
		if err != nil {
			return err
		}
		if err := m.Connect(host, port); err != nil {
			weftLog.Errorf("Unable to join overlay via %s: %v",
				cfg.Connect, err)
			return err
		}
		weftLog.Infof("Joined overlay via %s", cfg.Connect)

		if cfg.Broadcast != "" {
			if err := m.SendToAll([]byte(cfg.Broadcast)); err != nil {
				weftLog.Errorf("Unable to broadcast: %v", err)
			}
		}
	} else {
		if err := m.Run(); err != nil {
			weftLog.Errorf("Unable to start overlay: %v", err)
			return err
		}
		weftLog.Infof("Started a new overlay on port %d", m.Port())
	}

	// Run until a shutdown is requested, then leave the overlay
	// gracefully.
	<-ctx.Done()
	m.Disconnect()
	m.Join()
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := weftMain(); err != nil {
		os.Exit(1)
	}
}
