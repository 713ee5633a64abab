package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/chain/keystore"
	"github.com/soltide/vrf-oracle/internal/core/config"
	"github.com/soltide/vrf-oracle/internal/core/domain"
	"github.com/soltide/vrf-oracle/internal/core/worker"
	"github.com/soltide/vrf-oracle/internal/detect"
	"github.com/soltide/vrf-oracle/internal/fulfill"
	"github.com/soltide/vrf-oracle/internal/health"
	redisclient "github.com/soltide/vrf-oracle/internal/infra/redis"
	rpcinfra "github.com/soltide/vrf-oracle/internal/infra/rpc"
	"github.com/soltide/vrf-oracle/internal/infra/storage"
	"github.com/soltide/vrf-oracle/internal/infra/storage/memory"
	"github.com/soltide/vrf-oracle/internal/infra/storage/postgres"
	"github.com/soltide/vrf-oracle/internal/vrf"
)

// GracePeriod is how long Stop waits for in-flight fulfillments.
const GracePeriod = 15 * time.Second

// Oracle is the main application struct that manages the VRF oracle
// lifecycle: both detection channels, the ingestion detector, and the
// fulfillment pipeline.
type Oracle struct {
	cfg          *config.AppConfig
	channel      *detect.Channel
	scanner      *detect.Scanner
	detector     *detect.Detector
	pipeline     *fulfill.Pipeline
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	candidates chan domain.Candidate
	admitted   chan *domain.RandomnessRequest
}

// NewOracle creates an Oracle with all dependencies initialized.
func NewOracle(cfg *config.AppConfig) (*Oracle, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.Chain.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}

	// 1. RPC client with rate-limit guard and endpoint failover
	client, err := rpcinfra.NewClient(rpcinfra.ClientConfig{
		Endpoints:   cfg.Chain.Endpoints,
		Commitment:  cfg.Chain.Commitment,
		ConfirmPoll: cfg.Chain.ConfirmPoll,
		ConfirmWait: cfg.Chain.ConfirmWait,
		Guard:       rpcinfra.DefaultGuardConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init rpc client: %w", err)
	}

	// 2. Signing keys
	feePayer, err := keystore.Open(cfg.Keys.FeePayer)
	if err != nil {
		return nil, fmt.Errorf("failed to open fee payer keystore: %w", err)
	}
	oracleKey := feePayer
	if cfg.Keys.Oracle != "" && cfg.Keys.Oracle != cfg.Keys.FeePayer {
		oracleKey, err = keystore.Open(cfg.Keys.Oracle)
		if err != nil {
			return nil, fmt.Errorf("failed to open oracle keystore: %w", err)
		}
	}

	// 3. Proof collaborator
	var prover vrf.Prover
	switch cfg.VRF.Mode {
	case "remote":
		prover = vrf.NewRemote(cfg.VRF.URL, 10*time.Second)
	default:
		prover, err = vrf.NewLocal(cfg.VRF.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to init vrf key: %w", err)
		}
	}

	// 4. Journal storage
	var journal storage.JournalRepository
	var db *postgres.DB
	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		journal = postgres.NewJournalRepo(db)
		slog.Info("Using PostgreSQL journal")
	} else {
		journal = memory.NewJournal()
		slog.Info("Using in-memory journal")
	}

	// 5. Optional Redis marker mirror
	var redisClient *redisclient.Client
	var markers *redisclient.MarkerStore
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, marker mirror disabled", "error", err)
		} else {
			markers = redisclient.NewMarkerStore(redisClient, 0)
		}
	}

	// 6. Detection and fulfillment wiring
	candidates := make(chan domain.Candidate, 256)
	admitted := make(chan *domain.RandomnessRequest, 64)

	channel := detect.NewChannel(detect.ChannelConfig{
		WSURL:       cfg.Chain.WSURL,
		Commitment:  cfg.Chain.Commitment,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		MaxAttempts: 20,
	}, programID, candidates)

	scanner := detect.NewScanner(detect.ScannerConfig{
		Interval:      cfg.Scan.Interval,
		NonceLookback: int(cfg.Scan.NonceLookback),
	}, client, programID, candidates)

	var seen seenAdapter
	if markers != nil {
		seen = seenAdapter{markers: markers}
	}
	detector := detect.NewDetector(detect.DetectorConfig{
		ProcessedCap: cfg.Scan.ProcessedCap,
	}, client, seen, admitted)
	detector.SetSubscriptionProbe(scanner)

	var pipelineMarkers fulfill.MarkerSink
	if markers != nil {
		pipelineMarkers = markers
	}
	pipeline := fulfill.NewPipeline(fulfill.Config{
		ProgramID:    programID,
		SendAttempts: cfg.Chain.SendAttempts,
		BatchEnabled: cfg.Batch.Enabled,
		Batch: fulfill.CoordinatorConfig{
			Interval: cfg.Batch.Interval,
			MaxSize:  cfg.Batch.MaxSize,
		},
	}, client, prover, feePayer, oracleKey, journal, pipelineMarkers, detector)

	// 7. Health and retention
	detStatus := detectionStatus{channel: channel, scanner: scanner, detector: detector}
	healthMon := health.NewMonitor(detStatus, pipeline, cfg.Scan.Interval)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)
	pruner := worker.NewPruner(cfg.Retention, journal)

	return &Oracle{
		cfg:          cfg,
		channel:      channel,
		scanner:      scanner,
		detector:     detector,
		pipeline:     pipeline,
		pruner:       pruner,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
		candidates:   candidates,
		admitted:     admitted,
	}, nil
}

// Start starts the oracle and all its components.
func (o *Oracle) Start(ctx context.Context) error {
	go func() {
		if err := o.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			o.log.Error("Health server failed", "error", err)
		}
	}()

	go o.detector.Run(ctx, o.candidates)
	go o.pipeline.Run(ctx, o.admitted)
	go o.scanner.Run(ctx)
	go o.pruner.Start(ctx)

	go func() {
		if err := o.channel.Run(ctx); err != nil && ctx.Err() == nil {
			// Degraded mode: the backup scan is now the only detection
			// path until restart.
			o.log.Warn("Subscription channel gave up", "error", err)
		}
	}()

	o.log.Info("Oracle started",
		"program", o.cfg.Chain.ProgramID,
		"scan_interval", o.cfg.Scan.Interval,
		"batching", o.cfg.Batch.Enabled)
	return nil
}

// Stop shuts the oracle down, waiting up to GracePeriod for in-flight
// fulfillments to finish.
func (o *Oracle) Stop(ctx context.Context) error {
	o.log.Info("Stopping Oracle...")

	done := make(chan struct{})
	go func() {
		o.pipeline.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(GracePeriod):
		o.log.Warn("Grace period expired with fulfillments in flight")
	case <-ctx.Done():
	}

	if o.redisClient != nil {
		if err := o.redisClient.Close(); err != nil {
			o.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if o.db != nil {
		if err := o.db.Close(); err != nil {
			o.log.Warn("Failed to close database", "error", err)
		}
	}

	return o.healthServer.Stop(ctx)
}

// Health returns the current health report.
func (o *Oracle) Health(ctx context.Context) health.OracleHealth {
	return o.healthMon.CheckHealth(ctx)
}

// detectionStatus aggregates the detection components for health checks.
type detectionStatus struct {
	channel  *detect.Channel
	scanner  *detect.Scanner
	detector *detect.Detector
}

func (d detectionStatus) Connected() bool      { return d.channel.Connected() }
func (d detectionStatus) Reconnects() uint64   { return d.channel.Reconnects() }
func (d detectionStatus) LastScan() time.Time  { return d.scanner.LastScan() }
func (d detectionStatus) SkippedScans() uint64 { return d.scanner.SkippedScans() }
func (d detectionStatus) Admitted() uint64     { return d.detector.Admitted() }

// seenAdapter exposes the Redis marker store to the detector, which wants
// a boolean answer. A Redis error reads as "not seen": the on-chain status
// check still prevents double fulfillment.
type seenAdapter struct {
	markers *redisclient.MarkerStore
}

func (s seenAdapter) Seen(ctx context.Context, id string) bool {
	if s.markers == nil {
		return false
	}
	seen, err := s.markers.Seen(ctx, id)
	if err != nil {
		slog.Debug("marker lookup failed", "id", id, "error", err)
		return false
	}
	return seen
}
