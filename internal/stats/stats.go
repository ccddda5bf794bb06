package stats

import (
	"context"

	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/tips"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Aggregate derives summary statistics from a tip history snapshot. Tippers
// are counted by exact sender address.
func Aggregate(history []models.TipRecord) models.Stats {
	senders := make(map[common.Address]struct{}, len(history))
	total := new(uint256.Int)

	for _, tip := range history {
		senders[tip.SenderAddress] = struct{}{}
		if tip.Amount != nil {
			// saturate instead of wrapping
			if _, overflow := total.AddOverflow(total, tip.Amount); overflow {
				total.SetAllOne()
			}
		}
	}

	return models.Stats{
		TotalTips:    uint64(len(history)),
		TotalTippers: uint64(len(senders)),
		TotalAmount:  total,
	}
}

// Result is the outcome of a stats read for one contract
type Result struct {
	Status models.ResultStatus
	Stats  models.Stats
	Err    error
}

type Service struct {
	Fetcher *tips.Fetcher
	Logger  *zerolog.Logger
}

func NewService(fetcher *tips.Fetcher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{Fetcher: fetcher, Logger: logger}
}

// ForContract fetches the history of contract and aggregates it
func (s *Service) ForContract(ctx context.Context, contract common.Address) Result {
	if contract == (common.Address{}) {
		return Result{Status: models.StatusPending}
	}

	history, err := s.Fetcher.FetchAll(ctx, contract)
	if err != nil {
		s.Logger.Error().Err(err).Str("contract", contract.Hex()).Msg("Failed to compute tip stats")
		return Result{Status: models.StatusError, Err: err}
	}

	return Result{Status: models.StatusSuccess, Stats: Aggregate(history)}
}
