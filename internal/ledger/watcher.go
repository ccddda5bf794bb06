package ledger

import (
	"context"
	"math/big"
	"time"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// WatchWithdrawals polls eth_getLogs for Withdraw events emitted by contract
// from fromBlock onwards and forwards them to sink. It returns when ctx ends.
func (c *Client) WatchWithdrawals(ctx context.Context, contract common.Address, fromBlock uint64, sink chan<- models.WithdrawLog) error {
	ticker := time.NewTicker(c.EventPollInterval)
	defer ticker.Stop()

	next := fromBlock
	for {
		head, err := c.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Logger.Error().Err(err).Str("contract", contract.Hex()).Msg("Failed to get current block")
		} else if head >= next {
			logs, err := c.filterWithdrawals(ctx, contract, next, head)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.Logger.Error().
					Err(err).
					Uint64("fromBlock", next).
					Uint64("toBlock", head).
					Msg("Failed to fetch Withdraw logs")
			} else {
				for _, l := range logs {
					select {
					case sink <- l:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				next = head + 1
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) filterWithdrawals(ctx context.Context, contract common.Address, from, to uint64) ([]models.WithdrawLog, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{WithdrawTopic}},
	})
	if err != nil {
		return nil, remoteErr("eth_getLogs", err)
	}

	bound := c.ledger(contract)
	result := make([]models.WithdrawLog, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		withdrawLog, err := decodeWithdraw(bound, l)
		if err != nil {
			c.Logger.Warn().Err(err).Str("txHash", l.TxHash.Hex()).Msg("Skipping undecodable Withdraw log")
			continue
		}
		result = append(result, withdrawLog)
	}
	return result, nil
}

func decodeWithdraw(bound *bind.BoundContract, l types.Log) (models.WithdrawLog, error) {
	var event withdrawEvent
	if err := bound.UnpackLog(&event, "Withdraw", l); err != nil {
		return models.WithdrawLog{}, err
	}
	amount, err := models.FromBig(event.Amount)
	if err != nil {
		return models.WithdrawLog{}, err
	}
	return models.WithdrawLog{
		Contract:    l.Address,
		TxHash:      l.TxHash,
		Amount:      amount,
		BlockNumber: l.BlockNumber,
	}, nil
}

// WithdrawFromReceipt finds the Withdraw event emitted by contract in a mined
// receipt
func WithdrawFromReceipt(receipt *types.Receipt, contract common.Address) (models.WithdrawLog, bool) {
	if receipt == nil {
		return models.WithdrawLog{}, false
	}
	bound := bind.NewBoundContract(contract, TipflowABI, nil, nil, nil)
	for _, l := range receipt.Logs {
		if l.Address != contract || len(l.Topics) == 0 || l.Topics[0] != WithdrawTopic {
			continue
		}
		withdrawLog, err := decodeWithdraw(bound, *l)
		if err != nil {
			continue
		}
		return withdrawLog, true
	}
	return models.WithdrawLog{}, false
}
