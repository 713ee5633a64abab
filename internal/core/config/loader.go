package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if len(cfg.Chain.Endpoints) == 0 {
		return nil, fmt.Errorf("chain.endpoints is required")
	}
	if cfg.Chain.ProgramID == "" {
		return nil, fmt.Errorf("chain.program_id is required")
	}
	if cfg.Keys.FeePayer == "" {
		return nil, fmt.Errorf("keys.fee_payer is required")
	}
	if cfg.VRF.Mode == "remote" && cfg.VRF.URL == "" {
		return nil, fmt.Errorf("vrf.url is required in remote mode")
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Chain.Commitment == "" {
		cfg.Chain.Commitment = "confirmed"
	}
	if cfg.Chain.ConfirmPoll == 0 {
		cfg.Chain.ConfirmPoll = 2 * time.Second
	}
	if cfg.Chain.ConfirmWait == 0 {
		cfg.Chain.ConfirmWait = 90 * time.Second
	}
	if cfg.Chain.SendAttempts == 0 {
		cfg.Chain.SendAttempts = 3
	}
	if cfg.VRF.Mode == "" {
		cfg.VRF.Mode = "local"
	}
	if cfg.Scan.Interval == 0 {
		cfg.Scan.Interval = 30 * time.Second
	}
	if cfg.Scan.NonceLookback == 0 {
		cfg.Scan.NonceLookback = 4
	}
	if cfg.Scan.ProcessedCap == 0 {
		cfg.Scan.ProcessedCap = 10_000
	}
	if cfg.Batch.Interval == 0 {
		cfg.Batch.Interval = 5 * time.Second
	}
	if cfg.Batch.MaxSize == 0 {
		cfg.Batch.MaxSize = 10
	}
	if cfg.Retention.PruneInterval == 0 {
		cfg.Retention.PruneInterval = time.Hour
	}
}
