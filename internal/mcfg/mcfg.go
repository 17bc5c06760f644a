// Package mcfg holds the typed, compile-time-friendly configuration record
// threaded through every component constructor in the core. It intentionally
// carries no file-loading or flag-parsing logic of its own; cmd/mycelia is
// responsible for populating a Config from YAML with gopkg.in/yaml.v3 and
// handing it to the constructors below.
package mcfg

import "time"

// CurrentConfigVersion is the latest configuration schema version.
const CurrentConfigVersion = 1

// Config is the root configuration record for a Mycelia node.
type Config struct {
	Version   int             `yaml:"version,omitempty"`
	Identity  IdentityConfig  `yaml:"identity"`
	Economics EconomicsConfig `yaml:"economics"`
	Gradient  GradientConfig  `yaml:"gradient"`
	Election  ElectionConfig  `yaml:"election"`
	Septal    SeptalConfig    `yaml:"septal"`
	Raft      RaftConfig      `yaml:"raft"`
	LoRa      LoRaConfig      `yaml:"lora"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// IdentityConfig controls where a node's long-lived Ed25519 keypair is
// persisted. Losing or rotating this file mints a new NodeId on the next
// start, which resets everything keyed off that identity: credit balance,
// septal gate history, and any election role held by the node.
type IdentityConfig struct {
	KeyPath string `yaml:"key_path"`
}

// EconomicsConfig holds the credit-system constants.
type EconomicsConfig struct {
	InitialGrant     uint64 `yaml:"initial_grant"`
	EntropyTaxRateBp uint64 `yaml:"entropy_tax_rate_bp"` // basis points; 200 = 2%
	// UnifyRevivalPool, when true, makes the optimistic MVP CreditSynchronizer
	// also accumulate entropy tax into a local revival pool instead of
	// leaving that solely to the Raft variant.
	UnifyRevivalPool bool `yaml:"unify_revival_pool,omitempty"`
}

// GradientConfig holds GradientBroadcaster tunables.
type GradientConfig struct {
	MaxAge       time.Duration `yaml:"max_age"`
	FutureSkew   time.Duration `yaml:"future_skew"`
}

// ElectionConfig holds DistributedElection phase timeouts.
type ElectionConfig struct {
	CandidacyPhase time.Duration `yaml:"candidacy_phase"`
	VotingPhase    time.Duration `yaml:"voting_phase"`
	ElectionPhase  time.Duration `yaml:"election_phase"`

	MinUptime     float64 `yaml:"min_uptime"`
	MinBandwidth  float64 `yaml:"min_bandwidth"`
	MinReputation float64 `yaml:"min_reputation"`
}

// SeptalConfig holds SeptalGateManager tunables.
type SeptalConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// RaftConfig holds RaftCreditLedger tunables.
type RaftConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Backend     string `yaml:"backend"` // "memory" or "bbolt"
	DataDir     string `yaml:"data_dir,omitempty"`
	BootstrapID string `yaml:"bootstrap_id,omitempty"`
}

// LoRaConfig holds LoRaBridge tunables.
type LoRaConfig struct {
	MaxPayload       int           `yaml:"max_payload"`
	HopLimitCap      uint8         `yaml:"hop_limit_cap"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	HousekeepingTick time.Duration `yaml:"housekeeping_tick"`
	FECScheme        string        `yaml:"fec_scheme,omitempty"` // "", "reedsolomon", "raptorq"
}

// DedupConfig holds the shared deduplication cache tunables.
type DedupConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig controls ambient observability, carried regardless of the
// operator-dashboard non-goal.
type TelemetryConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns a Config populated with the system's default constants.
func Default() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Identity: IdentityConfig{
			KeyPath: "mycelia_identity.key",
		},
		Economics: EconomicsConfig{
			InitialGrant:     1000,
			EntropyTaxRateBp: 200,
		},
		Gradient: GradientConfig{
			MaxAge:     15 * time.Second,
			FutureSkew: 5 * time.Second,
		},
		Election: ElectionConfig{
			CandidacyPhase: 10 * time.Second,
			VotingPhase:    15 * time.Second,
			ElectionPhase:  30 * time.Second,
			MinUptime:      0.95,
			MinBandwidth:   10 * 1024 * 1024,
			MinReputation:  0.7,
		},
		Septal: SeptalConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Raft: RaftConfig{
			Backend: "memory",
		},
		LoRa: LoRaConfig{
			MaxPayload:       237,
			HopLimitCap:      7,
			ReconnectBackoff: 2 * time.Second,
			HousekeepingTick: 30 * time.Second,
		},
		Dedup: DedupConfig{
			Capacity: 4096,
			TTL:      5 * time.Minute,
		},
	}
}
