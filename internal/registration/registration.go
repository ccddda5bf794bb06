package registration

import (
	"context"
	"errors"
	"fmt"

	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/ledger"
	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/validation"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRegistered = ledger.ErrAlreadyRegistered
	ErrUsernameTaken     = ledger.ErrUsernameTaken
	ErrInvalidUsername   = errors.New("invalid username")
	ErrNoSender          = errors.New("no signer account configured")
)

// Service deploys a ledger contract for the signer's account through the
// factory
type Service struct {
	Registrar interfaces.Registrar
	Directory interfaces.CreatorDirectory
	Logger    *zerolog.Logger
}

func NewService(registrar interfaces.Registrar, directory interfaces.CreatorDirectory, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{Registrar: registrar, Directory: directory, Logger: logger}
}

// Register claims username for the signer and returns the new creator record
func (s *Service) Register(ctx context.Context, username string) (models.CreatorRecord, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return models.CreatorRecord{}, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}

	sender := s.Registrar.SenderAddress()
	if sender == (common.Address{}) {
		return models.CreatorRecord{}, ErrNoSender
	}

	if err := s.checkAvailable(ctx, sender, username); err != nil {
		return models.CreatorRecord{}, err
	}

	txHash, err := s.Registrar.SendDeployContract(ctx, username)
	if err != nil {
		return models.CreatorRecord{}, err
	}

	s.Logger.Info().
		Str("username", username).
		Str("owner", sender.Hex()).
		Str("txHash", txHash.Hex()).
		Msg("Waiting for creator contract deployment")

	receipt, err := s.Registrar.WaitReceipt(ctx, txHash)
	if err != nil {
		return models.CreatorRecord{}, fmt.Errorf("deployContract %s: %w", txHash.Hex(), err)
	}

	owner, contract, err := s.Registrar.ParseContractDeployed(receipt)
	if err != nil {
		return models.CreatorRecord{}, err
	}

	record := models.CreatorRecord{
		Username:        username,
		OwnerAddress:    owner,
		ContractAddress: contract,
	}

	s.Logger.Info().
		Str("username", username).
		Str("contract", contract.Hex()).
		Msg("Creator registered")

	return record, nil
}

// checkAvailable fails early on the conditions the factory would revert on
func (s *Service) checkAvailable(ctx context.Context, sender common.Address, username string) error {
	if s.Directory == nil {
		return nil
	}

	existing, err := s.Directory.CreatorInfoByAddress(ctx, sender)
	switch {
	case err == nil && existing.Username != "":
		return fmt.Errorf("%w: %s owns %s", ErrAlreadyRegistered, sender.Hex(), existing.ContractAddress.Hex())
	case err != nil && !errors.Is(err, ledger.ErrNoData):
		return err
	}

	taken, err := s.Directory.CreatorInfoByUsername(ctx, username)
	switch {
	case err == nil && taken.Username != "":
		return fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	case err != nil && !errors.Is(err, ledger.ErrNoData):
		return err
	}

	return nil
}
