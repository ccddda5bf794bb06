package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

var (
	// ErrNoData means a view call returned nothing, which the factory does for
	// unknown creators
	ErrNoData = errors.New("contract call returned no data")

	ErrNoSigner = errors.New("no transaction signer configured")

	ErrAlreadyRegistered = errors.New("creator contract already deployed")
	ErrUsernameTaken     = errors.New("username already registered")
)

// remoteErr tags a failed node call as transient unless the caller gave up
func remoteErr(method string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrTransientRemote, method, err)
}

// callErr classifies errors returned by BoundContract.Call
func callErr(method string, err error) error {
	if isNoData(err) {
		return fmt.Errorf("%s: %w", method, ErrNoData)
	}
	return remoteErr(method, err)
}

func isNoData(err error) bool {
	if errors.Is(err, bind.ErrNoCode) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "returned no data") ||
		strings.Contains(msg, "attempting to unmarshall an empty string") ||
		strings.Contains(msg, "abi: attempting to unmarshal an empty string")
}

// revertErr maps known factory revert reasons onto sentinel errors
func revertErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Contract already deployed"):
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, err)
	case strings.Contains(msg, "Username already registered"):
		return fmt.Errorf("%w: %v", ErrUsernameTaken, err)
	case errors.Is(err, models.ErrTransactionRejected):
		return err
	}
	return remoteErr("eth_sendRawTransaction", err)
}
