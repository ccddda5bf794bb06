package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tipflow-ledger/internal/interfaces"

	"github.com/rs/zerolog"
)

type ChainStatus struct {
	Name      string    `json:"name"`
	LastBlock uint64    `json:"last_block"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker tracks readiness and the latest head of every registered chain
type Checker struct {
	ready    atomic.Bool
	mu       sync.RWMutex
	statuses map[string]*ChainStatus
	logger   *zerolog.Logger
}

func NewChecker(logger *zerolog.Logger) *Checker {
	return &Checker{
		statuses: make(map[string]*ChainStatus),
		logger:   logger,
	}
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (c *Checker) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.statuses) == 0 || !c.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready"))
		return
	}

	response := make(map[string]interface{})
	response["status"] = "Ready"
	response["chains"] = c.statuses

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Watch polls the chain head every interval until ctx is done
func (c *Checker) Watch(ctx context.Context, source interfaces.BlockHeadSource, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			c.check(ctx, source)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (c *Checker) check(ctx context.Context, source interfaces.BlockHeadSource) {
	head, err := source.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error().
				Err(err).
				Str("chain", source.GetChainName().String()).
				Msg("Error getting latest block")
		}
		return
	}
	c.update(source.GetChainName().String(), head)
}

func (c *Checker) update(name string, lastBlock uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[name] = &ChainStatus{
		Name:      name,
		LastBlock: lastBlock,
		CheckedAt: time.Now().UTC(),
	}
}

// Handler exposes /healthz and /readyz
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", c.LivenessHandler)
	mux.HandleFunc("/readyz", c.ReadinessHandler)
	return mux
}
