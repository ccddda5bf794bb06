package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"tipflow-ledger/internal/config"
	"tipflow-ledger/internal/interfaces"
	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/rpc"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var (
	_ interfaces.CreatorDirectory = (*Client)(nil)
	_ interfaces.TipSource        = (*Client)(nil)
	_ interfaces.BalanceSource    = (*Client)(nil)
	_ interfaces.WithdrawLedger   = (*Client)(nil)
	_ interfaces.Registrar        = (*Client)(nil)
	_ interfaces.BlockHeadSource  = (*Client)(nil)
)

// Client talks to the factory and ledger contracts of one chain
type Client struct {
	Chain               config.ChainConfig
	Endpoint            string
	Logger              *zerolog.Logger
	ReceiptPollInterval time.Duration
	EventPollInterval   time.Duration
	MaxPollErrors       int

	eth     *ethclient.Client
	factory *bind.BoundContract
	opts    *bind.TransactOpts
}

type Option func(*Client)

// WithPrivateKey signs transactions locally with a hex encoded key
func WithPrivateKey(hexKey string, chainID *big.Int) (Option, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return WithTransactOpts(opts), nil
}

// WithTransactOpts uses an externally provided signer, e.g. a wallet bridge
func WithTransactOpts(opts *bind.TransactOpts) Option {
	return func(c *Client) {
		c.opts = opts
	}
}

func WithPollIntervals(receipt, event time.Duration) Option {
	return func(c *Client) {
		c.ReceiptPollInterval = receipt
		c.EventPollInterval = event
	}
}

// Dial connects to the first endpoint of the chain that answers with the
// expected chain ID
func Dial(ctx context.Context, chain config.ChainConfig, httpTimeout time.Duration, logger *zerolog.Logger, options ...Option) (*Client, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if len(chain.RpcEndpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoint configured for %s", chain.Name)
	}

	httpClient := rpc.NewHTTPClient(chain.ApiKey, chain.RateLimit, httpTimeout)

	var errs []error
	for _, endpoint := range chain.RpcEndpoints {
		rpcClient, err := gethrpc.DialOptions(ctx, endpoint, gethrpc.WithHTTPClient(httpClient))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		eth := ethclient.NewClient(rpcClient)

		if chain.ChainID != 0 {
			id, err := eth.ChainID(ctx)
			if err != nil {
				eth.Close()
				errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
				logger.Warn().Err(err).Str("endpoint", endpoint).Msg("RPC endpoint unavailable, trying next")
				continue
			}
			if id.Int64() != chain.ChainID {
				eth.Close()
				errs = append(errs, fmt.Errorf("%s: chain id %s, want %d", endpoint, id, chain.ChainID))
				continue
			}
		}

		logger.Info().
			Str("chain", chain.Name.String()).
			Str("endpoint", endpoint).
			Msg("Connected to chain node")
		return NewClient(eth, chain, endpoint, logger, options...), nil
	}

	return nil, fmt.Errorf("failed to connect to %s: %w", chain.Name, errors.Join(errs...))
}

// NewClient wraps an already connected ethclient
func NewClient(eth *ethclient.Client, chain config.ChainConfig, endpoint string, logger *zerolog.Logger, options ...Option) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Client{
		Chain:               chain,
		Endpoint:            endpoint,
		Logger:              logger,
		ReceiptPollInterval: 2 * time.Second,
		EventPollInterval:   4 * time.Second,
		MaxPollErrors:       5,
		eth:                 eth,
		factory:             bind.NewBoundContract(chain.FactoryAddress, FactoryABI, eth, eth, eth),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) GetChainName() models.ChainName {
	return c.Chain.Name
}

func (c *Client) GetExplorerURL(txHash string) string {
	return c.Chain.ExplorerBaseURL + txHash
}

// SenderAddress is the account transactions are sent from, zero when the
// client is read-only
func (c *Client) SenderAddress() common.Address {
	if c.opts == nil {
		return common.Address{}
	}
	return c.opts.From
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, remoteErr("eth_blockNumber", err)
	}
	return n, nil
}

// BalanceAt returns the native balance of account at the current head
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*uint256.Int, uint64, error) {
	blockNumber, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, 0, err
	}

	balance, err := c.eth.BalanceAt(ctx, account, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return nil, 0, remoteErr("eth_getBalance", err)
	}

	amount, err := models.FromBig(balance)
	if err != nil {
		return nil, 0, err
	}
	return amount, blockNumber, nil
}

func (c *Client) ledger(contract common.Address) *bind.BoundContract {
	return bind.NewBoundContract(contract, TipflowABI, c.eth, c.eth, c.eth)
}

// transactOpts returns a per-call copy of the signer options whose signer
// failures are reported as rejections
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.opts == nil {
		return nil, ErrNoSigner
	}

	opts := *c.opts
	opts.Context = ctx
	sign := c.opts.Signer
	opts.Signer = func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
		signed, err := sign(from, tx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrTransactionRejected, err)
		}
		return signed, nil
	}
	return &opts, nil
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}
