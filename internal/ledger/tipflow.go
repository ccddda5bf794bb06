package ledger

import (
	"context"
	"fmt"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// GetAllTips returns the full tip history of a ledger contract, earliest first
func (c *Client) GetAllTips(ctx context.Context, contract common.Address) ([]models.TipRecord, error) {
	var out []interface{}
	if err := c.ledger(contract).Call(&bind.CallOpts{Context: ctx}, &out, "getAllTips"); err != nil {
		return nil, callErr("getAllTips", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getAllTips: %w", ErrNoData)
	}

	raw := *abi.ConvertType(out[0], new([]tipTuple)).(*[]tipTuple)

	tips := make([]models.TipRecord, 0, len(raw))
	for i, t := range raw {
		amount, err := models.FromBig(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("tip %d amount: %w", i, err)
		}
		var ts uint64
		if t.Timestamp != nil {
			ts = t.Timestamp.Uint64()
		}
		tips = append(tips, models.TipRecord{
			SenderAddress: t.SenderAddress,
			SenderName:    t.SenderName,
			Message:       t.Message,
			Amount:        amount,
			Timestamp:     ts,
		})
	}

	c.Logger.Debug().
		Str("contract", contract.Hex()).
		Int("tipCount", len(tips)).
		Msg("Fetched tip history")

	return tips, nil
}

// SendWithdraw signs and broadcasts withdraw() on the ledger contract
func (c *Client) SendWithdraw(ctx context.Context, contract common.Address) (common.Hash, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.ledger(contract).Transact(opts, "withdraw")
	if err != nil {
		return common.Hash{}, revertErr(err)
	}

	c.Logger.Info().
		Str("contract", contract.Hex()).
		Str("txHash", tx.Hash().Hex()).
		Msg("Sent withdraw transaction")

	return tx.Hash(), nil
}
