package tips

import (
	"context"
	"errors"
	"fmt"

	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ErrWindowUnavailable is returned when the history could not be read. The
// consumer should stop requesting rows.
var ErrWindowUnavailable = fmt.Errorf("tip window unavailable: %w", models.ErrStaleData)

// Window is a slice of the tip history plus the length of the whole history
type Window struct {
	Rows       []models.TipRecord
	TotalCount int
}

// Fetcher reads the tip history of ledger contracts. The contract has no
// native pagination so every read fetches the full sequence.
type Fetcher struct {
	Source interfaces.TipSource
	Logger *zerolog.Logger
}

func NewFetcher(source interfaces.TipSource, logger *zerolog.Logger) *Fetcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fetcher{Source: source, Logger: logger}
}

// FetchAll returns the full tip history, earliest first
func (f *Fetcher) FetchAll(ctx context.Context, contract common.Address) ([]models.TipRecord, error) {
	if contract == (common.Address{}) {
		return nil, errors.New("no ledger contract")
	}
	tips, err := f.Source.GetAllTips(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tips for %s: %w", contract.Hex(), err)
	}
	return tips, nil
}

// GetWindow returns tips [start, end) clamped to the history length
func (f *Fetcher) GetWindow(ctx context.Context, contract common.Address, start, end int) (Window, error) {
	all, err := f.FetchAll(ctx, contract)
	if err != nil {
		f.Logger.Warn().
			Err(err).
			Str("contract", contract.Hex()).
			Int("startRow", start).
			Int("endRow", end).
			Msg("Tip window read failed")
		return Window{}, fmt.Errorf("%w: %w", ErrWindowUnavailable, err)
	}

	lo, hi := clamp(start, end, len(all))
	return Window{
		Rows:       all[lo:hi],
		TotalCount: len(all),
	}, nil
}

func clamp(start, end, length int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > length {
		start = length
	}
	if end > length {
		end = length
	}
	if end < start {
		end = start
	}
	return start, end
}
