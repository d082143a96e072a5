// Package keeper runs the settlement scheduler: on a cron cadence it reads
// the vault's epoch cursor and settles every ended epoch over the HTTP API.
package keeper

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/louisbranch/epochvault/internal/api"
	entrypoint "github.com/louisbranch/epochvault/internal/platform/cmd"
	"github.com/louisbranch/epochvault/internal/platform/timeouts"
)

// Config holds keeper configuration.
type Config struct {
	VaultURL string `env:"EPOCHVAULT_KEEPER_VAULT_URL" envDefault:"http://localhost:8080"`
	Secret   string `env:"EPOCHVAULT_KEEPER_SECRET"`
	Schedule string `env:"EPOCHVAULT_KEEPER_SCHEDULE" envDefault:"@every 1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.VaultURL, "vault-url", cfg.VaultURL, "The vault API base URL")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "The settlement sweep cron schedule")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Keeper sweeps ended epochs into settlement.
type Keeper struct {
	baseURL string
	token   string
	client  *http.Client
}

// New builds a keeper client against the vault API.
func New(cfg Config) (*Keeper, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("keeper secret is required")
	}
	token, err := api.KeeperToken(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign keeper token: %w", err)
	}
	return &Keeper{
		baseURL: strings.TrimRight(cfg.VaultURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeouts.KeeperRequest},
	}, nil
}

// Run starts the keeper service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceKeeper, func(ctx context.Context) error {
		keeper, err := New(cfg)
		if err != nil {
			return err
		}

		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.Schedule, func() {
			if err := keeper.Sweep(ctx); err != nil {
				log.Printf("settlement sweep: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
		}
		scheduler.Start()
		log.Printf("keeper sweeping %s on schedule %q", keeper.baseURL, cfg.Schedule)

		<-ctx.Done()
		stopped := scheduler.Stop()
		<-stopped.Done()
		return nil
	})
}

type epochCursor struct {
	Current     uint64 `json:"current"`
	LastSettled uint64 `json:"last_settled"`
}

// Sweep settles every ended epoch the vault has not settled yet. An epoch
// already settled by a concurrent sweep reports a conflict, which counts as
// done.
func (k *Keeper) Sweep(ctx context.Context) error {
	cursor, err := k.fetchCursor(ctx)
	if err != nil {
		return err
	}
	// Start at the settled cursor rather than after it: a fresh vault
	// reports zero before epoch zero is actually settled.
	for epoch := cursor.LastSettled; epoch < cursor.Current; epoch++ {
		settled, err := k.settle(ctx, epoch)
		if err != nil {
			return fmt.Errorf("settle epoch %d: %w", epoch, err)
		}
		if settled {
			log.Printf("settled epoch %d", epoch)
		}
	}
	return nil
}

func (k *Keeper) fetchCursor(ctx context.Context) (epochCursor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/v1/epochs/current", nil)
	if err != nil {
		return epochCursor{}, err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return epochCursor{}, fmt.Errorf("fetch epoch cursor: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return epochCursor{}, fmt.Errorf("fetch epoch cursor: status %d: %s", resp.StatusCode, body)
	}
	var cursor epochCursor
	if err := json.NewDecoder(resp.Body).Decode(&cursor); err != nil {
		return epochCursor{}, fmt.Errorf("decode epoch cursor: %w", err)
	}
	return cursor, nil
}

// settle triggers one settlement, reporting whether this call performed it.
func (k *Keeper) settle(ctx context.Context, epoch uint64) (bool, error) {
	url := fmt.Sprintf("%s/v1/epochs/%d/settle", k.baseURL, epoch)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+k.token)
	resp, err := k.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusConflict:
		// Already settled.
		return false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
}
