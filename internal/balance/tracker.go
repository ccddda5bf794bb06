package balance

import (
	"context"
	"errors"
	"sync"
	"time"

	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var _ interfaces.BalanceRefresher = (*Tracker)(nil)

var ErrNoContract = errors.New("no ledger contract")

// Result is a balance read. When a refresh fails after an earlier success
// Status stays StatusSuccess, Stale is set and Err carries the failure.
type Result struct {
	Status  models.ResultStatus
	Balance models.Balance
	Stale   bool
	Err     error
}

type entry struct {
	fetch sync.Mutex

	balance *models.Balance
	expired bool
	lastErr error
}

// Tracker owns the balance state of every contract it has been asked about
type Tracker struct {
	Source   interfaces.BalanceSource
	Symbol   string
	Decimals uint8
	TTL      time.Duration
	Logger   *zerolog.Logger

	now func() time.Time

	mu      sync.Mutex
	entries map[common.Address]*entry
}

func NewTracker(source interfaces.BalanceSource, symbol string, decimals uint8, ttl time.Duration, logger *zerolog.Logger) *Tracker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Tracker{
		Source:   source,
		Symbol:   symbol,
		Decimals: decimals,
		TTL:      ttl,
		Logger:   logger,
		now:      time.Now,
		entries:  make(map[common.Address]*entry),
	}
}

func (t *Tracker) entry(contract common.Address) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[contract]
	if !ok {
		e = &entry{}
		t.entries[contract] = e
	}
	return e
}

// Read serves a cached balance younger than the TTL or fetches a new one
func (t *Tracker) Read(ctx context.Context, contract common.Address) Result {
	if contract == (common.Address{}) {
		return Result{Status: models.StatusPending}
	}

	e := t.entry(contract)
	e.fetch.Lock()
	defer e.fetch.Unlock()

	if res, fresh := t.cached(e); fresh {
		return res
	}

	t.fetchLocked(ctx, contract, e)
	return t.snapshot(e)
}

// Peek returns the last known state without touching the network
func (t *Tracker) Peek(contract common.Address) Result {
	t.mu.Lock()
	e, ok := t.entries[contract]
	t.mu.Unlock()
	if !ok {
		return Result{Status: models.StatusPending}
	}
	return t.snapshot(e)
}

// Refresh re-reads the balance ignoring the cache. On failure the previous
// value is kept and returned together with the error.
func (t *Tracker) Refresh(ctx context.Context, contract common.Address) (models.Balance, error) {
	if contract == (common.Address{}) {
		return models.Balance{}, ErrNoContract
	}

	e := t.entry(contract)
	e.fetch.Lock()
	defer e.fetch.Unlock()

	err := t.fetchLocked(ctx, contract, e)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e.balance == nil {
		return models.Balance{}, err
	}
	return *e.balance, err
}

// Invalidate forces the next Read to go to the network
func (t *Tracker) Invalidate(contract common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[contract]; ok {
		e.expired = true
	}
}

func (t *Tracker) cached(e *entry) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.balance == nil || e.expired || e.lastErr != nil {
		return Result{}, false
	}
	if t.TTL <= 0 || t.now().Sub(e.balance.FetchedAt) >= t.TTL {
		return Result{}, false
	}
	return Result{Status: models.StatusSuccess, Balance: *e.balance}, true
}

// fetchLocked must be called with e.fetch held
func (t *Tracker) fetchLocked(ctx context.Context, contract common.Address, e *entry) error {
	amount, block, err := t.Source.BalanceAt(ctx, contract)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		e.lastErr = err
		t.Logger.Warn().Err(err).Str("contract", contract.Hex()).Msg("Balance read failed")
		return err
	}

	b := models.Balance{
		Amount:      amount,
		Symbol:      t.Symbol,
		Decimals:    t.Decimals,
		BlockNumber: block,
		FetchedAt:   t.now(),
	}
	e.balance = &b
	e.expired = false
	e.lastErr = nil

	t.Logger.Debug().
		Str("contract", contract.Hex()).
		Str("balance", b.Formatted()).
		Uint64("blockNumber", block).
		Msg("Balance updated")
	return nil
}

func (t *Tracker) snapshot(e *entry) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case e.balance == nil && e.lastErr != nil:
		return Result{Status: models.StatusError, Err: e.lastErr}
	case e.balance == nil:
		return Result{Status: models.StatusPending}
	default:
		return Result{
			Status:  models.StatusSuccess,
			Balance: *e.balance,
			Stale:   e.lastErr != nil || e.expired,
			Err:     e.lastErr,
		}
	}
}
