package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/mycelia-net/mycelia/internal/bridge"
	"github.com/mycelia-net/mycelia/internal/credit"
	"github.com/mycelia-net/mycelia/internal/dedup"
	"github.com/mycelia-net/mycelia/internal/election"
	"github.com/mycelia-net/mycelia/internal/gradient"
	"github.com/mycelia-net/mycelia/internal/identity"
	"github.com/mycelia-net/mycelia/internal/lora"
	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/metrics"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/internal/overlay"
	"github.com/mycelia-net/mycelia/internal/raftledger"
	"github.com/mycelia-net/mycelia/internal/septal"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o mycelia ./cmd/mycelia
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runNode(os.Args[2:])
	case "version", "--version":
		fmt.Printf("mycelia %s (%s)\n", version, commit)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: mycelia <command> [options]")
	fmt.Println()
	fmt.Println("  run --config <path>     Start a node (gossip core, optional Raft ledger and LoRa bridge)")
	fmt.Println("  version                 Show version information")
}

func runNode(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (defaults built in if omitted)")
	metricsAddr := fs.String("metrics-addr", ":9102", "address to serve Prometheus metrics on")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	local, err := loadOrCreateIdentity(cfg.Identity.KeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := slog.Default().With("node", local.String()[:12])
	m := metrics.New(version, runtime.Version())

	bus := overlay.New(local)
	gradientBroadcaster := gradient.New(local, cfg.Gradient, bus.PublishFuncFor(), log)
	creditSync := credit.New(local, cfg.Economics, bus.PublishFuncFor(), log)
	electionMgr := election.New(local, cfg.Election, localCandidacy(local, gradientBroadcaster), bus.PublishFuncFor(), log)
	septalMgr := septal.New(cfg.Septal, bus.PublishFuncFor(), log)
	enrBridge := bridge.New(local, gradientBroadcaster, creditSync, electionMgr, septalMgr, log)

	var ledger *raftledger.Ledger
	if cfg.Raft.Enabled {
		ledger, err = raftledger.New(local, cfg.Raft, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: starting raft ledger: %v\n", err)
			os.Exit(1)
		}
		defer ledger.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, topic := range enrBridge.Topics() {
		sub, err := bus.Subscribe(topic)
		if err != nil {
			log.Warn("subscribe failed", "topic", topic, "error", err)
			continue
		}
		go func(topic string, sub enr.Subscription) {
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-sub.Events():
					if !ok {
						return
					}
					if err := enrBridge.Dispatch(evt.Data); err != nil {
						log.Warn("dispatch failed", "topic", topic, "error", err)
					}
				}
			}
		}(topic, sub)
	}

	if device := os.Getenv("MYCELIA_LORA_DEVICE"); device != "" {
		link := lora.NewSerialLink(device)
		loraBridge := lora.New(link, localFromNodeID(local), dedup.New(cfg.Dedup.Capacity, cfg.Dedup.TTL), bus.PublishFuncFor(), m, log,
			cfg.LoRa.ReconnectBackoff, cfg.LoRa.HousekeepingTick,
			lora.WithFEC(lora.FECScheme(cfg.LoRa.FECScheme)))
		go func() {
			if err := loraBridge.Run(ctx); err != nil {
				log.Error("lora bridge stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{Addr: *metricsAddr, Handler: m.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	log.Info("mycelia node started", "metrics_addr", *metricsAddr, "raft_enabled", cfg.Raft.Enabled)
	<-ctx.Done()
	log.Info("shutting down")
	srv.Close()
}

func loadConfig(path string) (*mcfg.Config, error) {
	cfg := mcfg.Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// loadOrCreateIdentity loads the node's persisted Ed25519 keypair from
// keyPath, creating one on first run, and derives its NodeId from the public
// half. Keeping the keypair on disk means a node's NodeId, and everything
// keyed off it, survives a restart instead of resetting every time.
func loadOrCreateIdentity(keyPath string) (netid.NodeId, error) {
	priv, err := identity.LoadOrCreateIdentity(keyPath)
	if err != nil {
		return netid.NodeId{}, fmt.Errorf("load identity: %w", err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return netid.NodeId{}, fmt.Errorf("load identity: unexpected public key type %T", priv.Public())
	}
	return netid.NodeIdFromBytes(pub)
}

// localCandidacy reports the local node's current fitness to become a
// region's nexus. Uptime and reputation tracking live outside this
// demonstration binary; a production deployment would source them from a
// process supervisor and the peer reputation ledger respectively.
func localCandidacy(local netid.NodeId, g *gradient.Broadcaster) election.LocalCandidateFunc {
	return func() (election.NexusCandidate, bool) {
		grad, ok := g.NodeGradient(local)
		if !ok {
			return election.NexusCandidate{}, false
		}
		return election.NexusCandidate{
			Node:       local,
			Uptime:     1.0,
			Bandwidth:  grad.Bandwidth,
			Reputation: 1.0,
		}, true
	}
}

func localFromNodeID(n netid.NodeId) uint32 {
	return uint32(n[0])<<24 | uint32(n[1])<<16 | uint32(n[2])<<8 | uint32(n[3])
}
