package config

import (
	"time"

	redisclient "github.com/soltide/vrf-oracle/internal/infra/redis"
	"github.com/soltide/vrf-oracle/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Chain     ChainConfig        `yaml:"chain"`
	Keys      KeysConfig         `yaml:"keys"`
	VRF       VRFConfig          `yaml:"vrf"`
	Scan      ScanConfig         `yaml:"scan"`
	Batch     BatchConfig        `yaml:"batch"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Retention RetentionConfig    `yaml:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds the Solana cluster and program settings.
type ChainConfig struct {
	Endpoints    []string      `yaml:"endpoints"`
	WSURL        string        `yaml:"ws_url"`
	ProgramID    string        `yaml:"program_id"`
	Commitment   string        `yaml:"commitment"` // processed, confirmed, finalized
	ConfirmPoll  time.Duration `yaml:"confirm_poll"`
	ConfirmWait  time.Duration `yaml:"confirm_wait"`
	SendAttempts int           `yaml:"send_attempts"`
}

// KeysConfig points at the signing keypairs on disk. An empty oracle path
// reuses the fee payer identity.
type KeysConfig struct {
	FeePayer string `yaml:"fee_payer"`
	Oracle   string `yaml:"oracle"`
}

// VRFConfig selects the proof collaborator.
type VRFConfig struct {
	Mode    string `yaml:"mode"` // local, remote
	KeyPath string `yaml:"key_path"`
	URL     string `yaml:"url"`
}

// ScanConfig controls the periodic backup scan.
type ScanConfig struct {
	Interval      time.Duration `yaml:"interval"`
	NonceLookback uint64        `yaml:"nonce_lookback"`
	ProcessedCap  int           `yaml:"processed_cap"`
}

// BatchConfig controls batched fulfillment submission.
type BatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxSize  int           `yaml:"max_size"`
}

// RetentionConfig controls journal pruning. Zero period keeps everything.
type RetentionConfig struct {
	Period        time.Duration `yaml:"period"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}
