package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// WaitReceipt polls for the receipt of txHash until it is mined or ctx ends.
// A mined receipt with status 0 is returned together with ErrTransactionFailed.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.ReceiptPollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s reverted in block %s", models.ErrTransactionFailed, txHash.Hex(), receipt.BlockNumber)
			}
			c.Logger.Info().
				Str("txHash", txHash.Hex()).
				Uint64("gasUsed", receipt.GasUsed).
				Msg("Transaction mined")
			return receipt, nil

		case errors.Is(err, ethereum.NotFound):
			failures = 0

		case ctx.Err() != nil:
			return nil, ctx.Err()

		default:
			failures++
			c.Logger.Warn().Err(err).Str("txHash", txHash.Hex()).Int("failures", failures).Msg("Receipt poll failed")
			if failures >= c.MaxPollErrors {
				return nil, remoteErr("eth_getTransactionReceipt", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
