// Package vaultd parses vault daemon flags and starts the vault runtime.
package vaultd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/api"
	"github.com/louisbranch/epochvault/internal/metrics"
	entrypoint "github.com/louisbranch/epochvault/internal/platform/cmd"
	"github.com/louisbranch/epochvault/internal/platform/timeouts"
	"github.com/louisbranch/epochvault/internal/telemetry"
	"github.com/louisbranch/epochvault/internal/vault/assets"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/engine"
	"github.com/louisbranch/epochvault/internal/vault/epochsource"
	"github.com/louisbranch/epochvault/internal/vault/storage/sqlite"
	"github.com/louisbranch/epochvault/internal/vault/strategy"
)

// strategyAccount is the ledger account the local strategy holds assets in.
const strategyAccount = "strategy"

// Config holds vault daemon configuration.
type Config struct {
	Port         int    `env:"EPOCHVAULT_PORT" envDefault:"8080"`
	Addr         string `env:"EPOCHVAULT_ADDR"`
	DBPath       string `env:"EPOCHVAULT_DB_PATH" envDefault:"epochvault.db"`
	KeeperSecret string `env:"EPOCHVAULT_KEEPER_SECRET"`

	EpochGenesis string        `env:"EPOCHVAULT_EPOCH_GENESIS" envDefault:"2024-01-01T00:00:00Z"`
	EpochLength  time.Duration `env:"EPOCHVAULT_EPOCH_LENGTH" envDefault:"24h"`

	FeeRecipient       string `env:"EPOCHVAULT_FEE_RECIPIENT" envDefault:"treasury"`
	EntryCost          string `env:"EPOCHVAULT_ENTRY_COST" envDefault:"0"`
	ExitCost           string `env:"EPOCHVAULT_EXIT_COST" envDefault:"0"`
	ManagementRateBps  int64  `env:"EPOCHVAULT_MANAGEMENT_RATE_BPS" envDefault:"0"`
	PerformanceRateBps int64  `env:"EPOCHVAULT_PERFORMANCE_RATE_BPS" envDefault:"0"`
	HurdleBps          int64  `env:"EPOCHVAULT_HURDLE_BPS" envDefault:"0"`
	MaxUserDeposit     string `env:"EPOCHVAULT_MAX_USER_DEPOSIT" envDefault:"0"`
	MaxPoolDeposit     string `env:"EPOCHVAULT_MAX_POOL_DEPOSIT" envDefault:"0"`
	ClaimWindowEpochs  int    `env:"EPOCHVAULT_CLAIM_WINDOW_EPOCHS" envDefault:"50"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The vault server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The vault server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) params() (domain.Params, error) {
	params := domain.DefaultParams(c.FeeRecipient)
	params.ManagementRateBps = c.ManagementRateBps
	params.PerformanceRateBps = c.PerformanceRateBps
	params.HurdleBps = c.HurdleBps
	params.ClaimWindowEpochs = c.ClaimWindowEpochs

	fields := []struct {
		dst  *sdkmath.Int
		src  string
		name string
	}{
		{&params.EntryCost, c.EntryCost, "entry cost"},
		{&params.ExitCost, c.ExitCost, "exit cost"},
		{&params.MaxUserDeposit, c.MaxUserDeposit, "max user deposit"},
		{&params.MaxPoolDeposit, c.MaxPoolDeposit, "max pool deposit"},
	}
	for _, f := range fields {
		parsed, ok := sdkmath.NewIntFromString(strings.TrimSpace(f.src))
		if !ok {
			return domain.Params{}, fmt.Errorf("%s must be a decimal integer, got %q", f.name, f.src)
		}
		*f.dst = parsed
	}
	return params, nil
}

// Run starts the vault daemon.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVaultd, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	params, err := cfg.params()
	if err != nil {
		return err
	}
	genesis, err := time.Parse(time.RFC3339, cfg.EpochGenesis)
	if err != nil {
		return fmt.Errorf("parse epoch genesis: %w", err)
	}
	epochs, err := epochsource.NewInterval(genesis, cfg.EpochLength)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	ledger := assets.NewLedger()
	set := metrics.New()
	eng, err := engine.New(ctx, engine.Config{
		Params:      params,
		EpochSource: epochs,
		Strategy:    strategy.NewStatic(ledger, strategyAccount, engine.VaultAccount),
		Assets:      ledger,
		Store:       store,
		Telemetry:   telemetry.NewEmitter(store),
		Metrics:     set,
	})
	if err != nil {
		return err
	}

	server, err := api.New(api.Config{
		Engine:       eng,
		Metrics:      set,
		KeeperSecret: cfg.KeeperSecret,
	})
	if err != nil {
		return err
	}

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()
	log.Printf("vaultd listening on %s", addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
