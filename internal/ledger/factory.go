package ledger

import (
	"context"
	"fmt"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CreatorInfoByAddress reads the factory's record for owner. Unregistered
// owners come back with an empty username; mapping that to "not found" is
// left to the caller.
func (c *Client) CreatorInfoByAddress(ctx context.Context, owner common.Address) (models.CreatorRecord, error) {
	return c.creatorInfo(ctx, "creatorInfoByAddress", owner)
}

func (c *Client) CreatorInfoByUsername(ctx context.Context, username string) (models.CreatorRecord, error) {
	return c.creatorInfo(ctx, "creatorInfoByUsername", username)
}

func (c *Client) creatorInfo(ctx context.Context, method string, arg interface{}) (models.CreatorRecord, error) {
	var out []interface{}
	if err := c.factory.Call(&bind.CallOpts{Context: ctx}, &out, method, arg); err != nil {
		return models.CreatorRecord{}, callErr(method, err)
	}
	if len(out) != 3 {
		return models.CreatorRecord{}, fmt.Errorf("%s: %w", method, ErrNoData)
	}

	record := models.CreatorRecord{
		Username:        *abi.ConvertType(out[0], new(string)).(*string),
		OwnerAddress:    *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		ContractAddress: *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
	}

	c.Logger.Debug().
		Str("method", method).
		Str("username", record.Username).
		Str("contract", record.ContractAddress.Hex()).
		Msg("Creator lookup completed")

	return record, nil
}

// SendDeployContract broadcasts deployContract(username) from the configured
// signer and returns the transaction hash
func (c *Client) SendDeployContract(ctx context.Context, username string) (common.Hash, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.factory.Transact(opts, "deployContract", username)
	if err != nil {
		return common.Hash{}, revertErr(err)
	}

	c.Logger.Info().
		Str("username", username).
		Str("txHash", tx.Hash().Hex()).
		Msg("Sent deployContract transaction")

	return tx.Hash(), nil
}

// ParseContractDeployed extracts the ContractDeployed event emitted by the
// factory from a mined receipt
func (c *Client) ParseContractDeployed(receipt *types.Receipt) (common.Address, common.Address, error) {
	for _, log := range receipt.Logs {
		if log.Address != c.Chain.FactoryAddress || len(log.Topics) == 0 || log.Topics[0] != ContractDeployedTopic {
			continue
		}

		var event contractDeployed
		if err := c.factory.UnpackLog(&event, "ContractDeployed", *log); err != nil {
			return common.Address{}, common.Address{}, fmt.Errorf("failed to decode ContractDeployed: %w", err)
		}
		return event.Owner, event.ContractAddress, nil
	}

	return common.Address{}, common.Address{}, fmt.Errorf("receipt %s: ContractDeployed event: %w", receipt.TxHash.Hex(), ErrNoData)
}
