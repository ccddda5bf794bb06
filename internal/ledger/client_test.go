package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tipflow-ledger/internal/config"
	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	ownerAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ledgerAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC requests from a method table
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) (interface{}, error)
	calls    map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		handlers: make(map[string]func([]json.RawMessage) (interface{}, error)),
		calls:    make(map[string]int),
	}
}

func (f *fakeNode) handle(method string, fn func(params []json.RawMessage) (interface{}, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = fn
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	handler, ok := f.handlers[req.Method]
	f.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
	} else if result, err := handler(req.Params); err != nil {
		resp["error"] = map[string]interface{}{"code": -32000, "message": err.Error()}
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func chainID(id int64) func([]json.RawMessage) (interface{}, error) {
	return func([]json.RawMessage) (interface{}, error) {
		return hexutil.EncodeBig(big.NewInt(id)), nil
	}
}

func testChain(endpoints ...string) config.ChainConfig {
	return config.ChainConfig{
		Name:            models.BaseSepolia,
		ChainID:         84532,
		RpcEndpoints:    endpoints,
		ExplorerBaseURL: "https://sepolia.basescan.org/tx/",
		FactoryAddress:  factoryAddr,
		NativeSymbol:    "ETH",
		NativeDecimals:  18,
	}
}

func dialFake(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	node.handle("eth_chainId", chainID(84532))
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	client, err := Dial(context.Background(), testChain(server.URL), 5*time.Second, &logger,
		WithPollIntervals(10*time.Millisecond, 10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestDial_FallsBackToNextEndpoint(t *testing.T) {
	wrong := newFakeNode()
	wrong.handle("eth_chainId", chainID(1))
	wrongServer := httptest.NewServer(wrong)
	defer wrongServer.Close()

	right := newFakeNode()
	right.handle("eth_chainId", chainID(84532))
	rightServer := httptest.NewServer(right)
	defer rightServer.Close()

	logger := zerolog.Nop()
	client, err := Dial(context.Background(), testChain(wrongServer.URL, rightServer.URL), 5*time.Second, &logger)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, rightServer.URL, client.Endpoint)
	assert.Equal(t, models.BaseSepolia, client.GetChainName())
	assert.Equal(t, 1, wrong.count("eth_chainId"))
}

func TestDial_AllEndpointsFail(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_chainId", chainID(1))
	server := httptest.NewServer(node)
	defer server.Close()

	logger := zerolog.Nop()
	_, err := Dial(context.Background(), testChain(server.URL), 5*time.Second, &logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain id")

	_, err = Dial(context.Background(), testChain(), 5*time.Second, &logger)
	assert.Error(t, err)
}

func TestCreatorInfoByAddress(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, error) {
		data, err := FactoryABI.Methods["creatorInfoByAddress"].Outputs.Pack("alice", ownerAddr, ledgerAddr)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(data), nil
	})
	client := dialFake(t, node)

	record, err := client.CreatorInfoByAddress(context.Background(), ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, "alice", record.Username)
	assert.Equal(t, ownerAddr, record.OwnerAddress)
	assert.Equal(t, ledgerAddr, record.ContractAddress)
}

func TestCreatorInfo_NoDataAtTarget(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, error) { return "0x", nil })
	node.handle("eth_getCode", func([]json.RawMessage) (interface{}, error) { return "0x", nil })
	client := dialFake(t, node)

	_, err := client.CreatorInfoByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoData)
	assert.NotErrorIs(t, err, models.ErrTransientRemote)
}

func TestCreatorInfo_NodeErrorIsTransient(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, error) {
		return nil, errors.New("upstream timeout")
	})
	client := dialFake(t, node)

	_, err := client.CreatorInfoByAddress(context.Background(), ownerAddr)
	assert.ErrorIs(t, err, models.ErrTransientRemote)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestGetAllTips(t *testing.T) {
	sender := common.HexToAddress("0x3333333333333333333333333333333333333333")
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, error) {
		tips := []tipTuple{
			{SenderAddress: sender, SenderName: "bob", Message: "gm", Amount: big.NewInt(1000), Timestamp: big.NewInt(1700000000)},
			{SenderAddress: ownerAddr, SenderName: "", Message: "", Amount: big.NewInt(5), Timestamp: big.NewInt(1700000100)},
		}
		data, err := TipflowABI.Methods["getAllTips"].Outputs.Pack(tips)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(data), nil
	})
	client := dialFake(t, node)

	tips, err := client.GetAllTips(context.Background(), ledgerAddr)
	require.NoError(t, err)
	require.Len(t, tips, 2)

	assert.Equal(t, sender, tips[0].SenderAddress)
	assert.Equal(t, "bob", tips[0].SenderName)
	assert.Equal(t, "gm", tips[0].Message)
	assert.Equal(t, uint64(1000), tips[0].Amount.Uint64())
	assert.Equal(t, uint64(1700000000), tips[0].Timestamp)
	assert.Equal(t, uint64(5), tips[1].Amount.Uint64())
}

func TestBalanceAt(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_blockNumber", func([]json.RawMessage) (interface{}, error) { return "0x64", nil })
	node.handle("eth_getBalance", func(params []json.RawMessage) (interface{}, error) {
		var block string
		if err := json.Unmarshal(params[1], &block); err != nil {
			return nil, err
		}
		if block != "0x64" {
			return nil, errors.New("unexpected block " + block)
		}
		return "0xde0b6b3a7640000", nil
	})
	client := dialFake(t, node)

	amount, block, err := client.BalanceAt(context.Background(), ledgerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), block)
	assert.Equal(t, "1000000000000000000", amount.Dec())
}

func TestSendWithdraw_WithoutSigner(t *testing.T) {
	client := dialFake(t, newFakeNode())

	_, err := client.SendWithdraw(context.Background(), ledgerAddr)
	assert.ErrorIs(t, err, ErrNoSigner)
	assert.Equal(t, common.Address{}, client.SenderAddress())
}

func TestParseContractDeployed(t *testing.T) {
	client := dialFake(t, newFakeNode())

	data, err := FactoryABI.Events["ContractDeployed"].Inputs.NonIndexed().Pack(ledgerAddr)
	require.NoError(t, err)

	receipt := &types.Receipt{
		TxHash: common.HexToHash("0xabc"),
		Logs: []*types.Log{
			{Address: ledgerAddr, Topics: []common.Hash{WithdrawTopic}},
			{
				Address: factoryAddr,
				Topics:  []common.Hash{ContractDeployedTopic, common.BytesToHash(ownerAddr.Bytes())},
				Data:    data,
			},
		},
	}

	owner, contract, err := client.ParseContractDeployed(receipt)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, owner)
	assert.Equal(t, ledgerAddr, contract)

	_, _, err = client.ParseContractDeployed(&types.Receipt{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRevertErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"already deployed", errors.New("execution reverted: Contract already deployed"), ErrAlreadyRegistered},
		{"username taken", errors.New("execution reverted: Username already registered"), ErrUsernameTaken},
		{"signer declined", models.ErrTransactionRejected, models.ErrTransactionRejected},
		{"other", errors.New("nonce too low"), models.ErrTransientRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, revertErr(tt.err), tt.want)
		})
	}
}

func TestGetExplorerURL(t *testing.T) {
	client := dialFake(t, newFakeNode())
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xabc", client.GetExplorerURL("0xabc"))
}
