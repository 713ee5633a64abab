package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
chain:
  endpoints:
    - https://api.devnet.solana.com
  ws_url: wss://api.devnet.solana.com
  program_id: Vote111111111111111111111111111111111111111
keys:
  fee_payer: /keys/fee-payer.json
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Chain.Commitment != "confirmed" {
		t.Errorf("default commitment = %s, want confirmed", cfg.Chain.Commitment)
	}
	if cfg.Scan.Interval != 30*time.Second {
		t.Errorf("default scan interval = %v, want 30s", cfg.Scan.Interval)
	}
	if cfg.Scan.ProcessedCap != 10_000 {
		t.Errorf("default processed cap = %d, want 10000", cfg.Scan.ProcessedCap)
	}
	if cfg.VRF.Mode != "local" {
		t.Errorf("default vrf mode = %s, want local", cfg.VRF.Mode)
	}
	if cfg.Batch.MaxSize != 10 {
		t.Errorf("default batch max size = %d, want 10", cfg.Batch.MaxSize)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PROGRAM_ID", "Vote111111111111111111111111111111111111111")

	cfg, err := Load(writeConfig(t, `
chain:
  endpoints:
    - https://api.devnet.solana.com
  program_id: ${TEST_PROGRAM_ID}
keys:
  fee_payer: /keys/fee-payer.json
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.ProgramID != "Vote111111111111111111111111111111111111111" {
		t.Errorf("program id = %s, env var not expanded", cfg.Chain.ProgramID)
	}
}

func TestLoadRejectsIncomplete(t *testing.T) {
	cases := map[string]string{
		"no endpoints": `
chain:
  program_id: Vote111111111111111111111111111111111111111
keys:
  fee_payer: /keys/fee-payer.json
`,
		"no program": `
chain:
  endpoints: [https://api.devnet.solana.com]
keys:
  fee_payer: /keys/fee-payer.json
`,
		"no fee payer": `
chain:
  endpoints: [https://api.devnet.solana.com]
  program_id: Vote111111111111111111111111111111111111111
`,
		"remote vrf without url": `
chain:
  endpoints: [https://api.devnet.solana.com]
  program_id: Vote111111111111111111111111111111111111111
keys:
  fee_payer: /keys/fee-payer.json
vrf:
  mode: remote
`,
	}

	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: Load accepted invalid config", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
