// Package config loads animicad's node configuration from a TOML file, with
// environment-variable overrides, in the same vein as go-ethereum's
// cmd/geth config.toml (built on github.com/BurntSushi/toml). Unknown TOML
// keys and unknown environment variables are ignored.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds every knob SPEC_FULL.md's ambient/domain stack needs.
type Config struct {
	ChainID  uint64 `toml:"chain_id"`
	RPCAddr  string `toml:"rpc_addr"`
	DAAddr   string `toml:"da_addr"`
	BlobDir  string `toml:"blob_dir"`
	AnchorDB string `toml:"anchor_db"`
	BlobDB   string `toml:"blob_db"`

	SLA       SLAConfig       `toml:"sla"`
	Penalty   PenaltyConfig   `toml:"penalty"`
	Gossip    GossipConfig    `toml:"gossip"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Retention RetentionConfig `toml:"retention"`
	Erasure   ErasureConfig   `toml:"erasure"`
}

// ErasureConfig fixes the (k, n, shard_size) erasure-coding parameters new
// blobs are split under (C6/C9).
type ErasureConfig struct {
	K         int `toml:"k"`
	N         int `toml:"n"`
	ShardSize int `toml:"shard_size"`
}

// SLAConfig configures the rolling-window SLA metrics engine (C3).
type SLAConfig struct {
	WindowSeconds int64   `toml:"window_seconds"`
	EWMAAlpha     float64 `toml:"ewma_alpha"`
}

// PenaltyConfig configures the penalty ramp (C2).
type PenaltyConfig struct {
	Multiplier        float64 `toml:"multiplier"`
	OffenseWindowSecs int64   `toml:"offense_window_seconds"`
	MinSlash          uint64  `toml:"min_slash"`
	MaxSlash          uint64  `toml:"max_slash"`
	MaxJailSeconds    int64   `toml:"max_jail_seconds"`
}

// GossipConfig configures the pubsub mesh (C10).
type GossipConfig struct {
	Fanout          int   `toml:"fanout"`
	DedupeCacheSize int   `toml:"dedupe_cache_size"`
	RandomSeed      int64 `toml:"random_seed"`
}

// RateLimitConfig configures per-peer and global token buckets (C11).
type RateLimitConfig struct {
	PeerRate    float64 `toml:"peer_rate"`
	PeerBurst   float64 `toml:"peer_burst"`
	GlobalRate  float64 `toml:"global_rate"`
	GlobalBurst float64 `toml:"global_burst"`
}

// RetentionConfig configures blob GC (C8).
type RetentionConfig struct {
	ProtectYoungerThanSeconds int64 `toml:"protect_younger_than_seconds"`
	KeepNewestPerNamespace    int   `toml:"keep_newest_per_namespace"`
	KeepNewestGlobal          int   `toml:"keep_newest_global"`
	MaxDeletePerRun           int   `toml:"max_delete_per_run"`
}

// Default returns a Config populated with conservative defaults.
func Default() Config {
	return Config{
		ChainID:  1,
		RPCAddr:  "127.0.0.1:8645",
		DAAddr:   "127.0.0.1:8646",
		BlobDir:  "./data/blobs",
		AnchorDB: "./data/anchor.sqlite",
		BlobDB:   "./data/blob.sqlite",
		SLA: SLAConfig{
			WindowSeconds: 3600,
			EWMAAlpha:     0.2,
		},
		Penalty: PenaltyConfig{
			Multiplier:        1.35,
			OffenseWindowSecs: 86400,
			MinSlash:          1,
			MaxSlash:          1 << 40,
			MaxJailSeconds:    7 * 24 * 3600,
		},
		Gossip: GossipConfig{
			Fanout:          6,
			DedupeCacheSize: 4096,
			RandomSeed:      1,
		},
		RateLimit: RateLimitConfig{
			PeerRate:    10,
			PeerBurst:   30,
			GlobalRate:  1000,
			GlobalBurst: 3000,
		},
		Retention: RetentionConfig{
			ProtectYoungerThanSeconds: 3600,
			KeepNewestPerNamespace:    10,
			KeepNewestGlobal:          100,
			MaxDeletePerRun:           1000,
		},
		Erasure: ErasureConfig{
			K:         10,
			N:         16,
			ShardSize: 4096,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// variable overrides (ANIMICA_CHAIN_ID, ANIMICA_RPC_ADDR, ANIMICA_DA_ADDR,
// ANIMICA_BLOB_DIR, ANIMICA_ANCHOR_DB, ANIMICA_BLOB_DB).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANIMICA_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}
	if v := os.Getenv("ANIMICA_RPC_ADDR"); v != "" {
		cfg.RPCAddr = v
	}
	if v := os.Getenv("ANIMICA_DA_ADDR"); v != "" {
		cfg.DAAddr = v
	}
	if v := os.Getenv("ANIMICA_BLOB_DIR"); v != "" {
		cfg.BlobDir = v
	}
	if v := os.Getenv("ANIMICA_ANCHOR_DB"); v != "" {
		cfg.AnchorDB = v
	}
	if v := os.Getenv("ANIMICA_BLOB_DB"); v != "" {
		cfg.BlobDB = v
	}
}
