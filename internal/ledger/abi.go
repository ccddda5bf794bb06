package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const factoryABIJSON = `[
	{"type":"function","name":"creatorInfoByAddress","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"username","type":"string"},{"name":"owner","type":"address"},{"name":"contractAddress","type":"address"}]},
	{"type":"function","name":"creatorInfoByUsername","stateMutability":"view",
	 "inputs":[{"name":"username","type":"string"}],
	 "outputs":[{"name":"username","type":"string"},{"name":"owner","type":"address"},{"name":"contractAddress","type":"address"}]},
	{"type":"function","name":"deployContract","stateMutability":"nonpayable",
	 "inputs":[{"name":"username","type":"string"}],"outputs":[]},
	{"type":"event","name":"ContractDeployed","anonymous":false,
	 "inputs":[{"name":"owner","type":"address","indexed":true},{"name":"contractAddress","type":"address","indexed":false}]}
]`

const tipflowABIJSON = `[
	{"type":"function","name":"getAllTips","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"senderAddress","type":"address"},
		{"name":"senderName","type":"string"},
		{"name":"message","type":"string"},
		{"name":"amount","type":"uint256"},
		{"name":"timestamp","type":"uint256"}]}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"Withdraw","anonymous":false,
	 "inputs":[{"name":"creator","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var (
	FactoryABI = mustParseABI(factoryABIJSON)
	TipflowABI = mustParseABI(tipflowABIJSON)

	// WithdrawTopic is the topic0 of the ledger's Withdraw event
	WithdrawTopic = TipflowABI.Events["Withdraw"].ID
	// ContractDeployedTopic is the topic0 of the factory's ContractDeployed event
	ContractDeployedTopic = FactoryABI.Events["ContractDeployed"].ID
)

// tipTuple mirrors one element of getAllTips() so abi.ConvertType can fill it
type tipTuple struct {
	SenderAddress common.Address
	SenderName    string
	Message       string
	Amount        *big.Int
	Timestamp     *big.Int
}

type contractDeployed struct {
	Owner           common.Address
	ContractAddress common.Address
}

type withdrawEvent struct {
	Creator common.Address
	Amount  *big.Int
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid contract ABI: " + err.Error())
	}
	return parsed
}
