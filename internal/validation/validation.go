package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 10
)

var (
	addressRegex  = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashRegex   = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	urlRegex      = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
)

// ValidateAddress checks the hex form of an EVM address and rejects the
// zero address
func ValidateAddress(address string) error {
	if address == "" {
		return errors.New("address cannot be empty")
	}
	if !addressRegex.MatchString(address) {
		return errors.New("invalid Ethereum address format")
	}
	if common.HexToAddress(address) == (common.Address{}) {
		return errors.New("zero address is not allowed")
	}
	return nil
}

// ParseAddress validates and converts an address in one step
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if err := ValidateAddress(address); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(address), nil
}

// ValidateUsername enforces the registration form limits. Usernames end up
// in tip page URLs so only URL-safe characters are accepted.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters")
	}
	return nil
}

// ValidateTxHash validates transaction hash format
func ValidateTxHash(txHash string) error {
	if txHash == "" {
		return errors.New("transaction hash cannot be empty")
	}
	if !txHashRegex.MatchString(txHash) {
		return errors.New("invalid Ethereum transaction hash")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(url string) error {
	if url == "" {
		return errors.New("URL cannot be empty")
	}
	if !urlRegex.MatchString(url) {
		return errors.New("invalid URL format")
	}
	return nil
}

// ValidateWindow checks a requested [start, end) row range
func ValidateWindow(start, end int) error {
	if start < 0 {
		return errors.New("start row cannot be negative")
	}
	if end < start {
		return errors.New("end row must not be before start row")
	}
	return nil
}
