package withdraw

import (
	"context"
	"errors"

	"tipflow-ledger/internal/ledger"
	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type confirmation struct {
	source      models.ConfirmationSource
	txHash      common.Hash
	amount      *uint256.Int
	blockNumber uint64
	err         error
}

// awaitConfirmation races the transaction receipt against the contract's
// Withdraw event. The first signal to arrive settles the session and the
// other wait is cancelled. Any Withdraw at the contract from fromBlock on
// counts, so a wallet replacing the transaction still settles through the
// event side.
func (c *Coordinator) awaitConfirmation(ctx context.Context, contract common.Address, txHash common.Hash, fromBlock uint64) (confirmation, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so the losing side never blocks after cancel
	latch := make(chan confirmation, 2)

	go func() {
		receipt, err := c.Ledger.WaitReceipt(wctx, txHash)
		if err != nil {
			latch <- confirmation{source: models.ConfirmedByReceipt, err: err}
			return
		}
		result := confirmation{source: models.ConfirmedByReceipt, txHash: txHash}
		if receipt.BlockNumber != nil {
			result.blockNumber = receipt.BlockNumber.Uint64()
		}
		if log, ok := ledger.WithdrawFromReceipt(receipt, contract); ok {
			result.amount = log.Amount
		}
		latch <- result
	}()

	go func() {
		sink := make(chan models.WithdrawLog)
		watchErr := make(chan error, 1)
		go func() {
			watchErr <- c.Ledger.WatchWithdrawals(wctx, contract, fromBlock, sink)
		}()

		for {
			select {
			case log := <-sink:
				if log.Contract != contract {
					continue
				}
				if log.TxHash != txHash {
					c.Logger.Info().
						Str("submitted", txHash.Hex()).
						Str("observed", log.TxHash.Hex()).
						Msg("Withdraw settled by a different transaction")
				}
				latch <- confirmation{
					source:      models.ConfirmedByEvent,
					txHash:      log.TxHash,
					amount:      log.Amount,
					blockNumber: log.BlockNumber,
				}
				return
			case err := <-watchErr:
				if err != nil && !errors.Is(err, context.Canceled) {
					c.Logger.Warn().Err(err).Str("contract", contract.Hex()).Msg("Withdraw event watch stopped")
				}
				return
			}
		}
	}()

	select {
	case result := <-latch:
		if result.err != nil {
			return result, result.err
		}
		return result, nil
	case <-ctx.Done():
		return confirmation{}, ctx.Err()
	}
}
