package holdings

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/halverson/tokengate/pkg/registry"
)

// ContractCaller is the slice of ethclient.Client the oracle needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Minimal ABI fragments for the three holding checks. balanceOf(address)
// has the same selector for ERC-20 and ERC-721, so one fragment serves both.
const balanceOfABIJSON = `[{
	"inputs": [{"name": "account", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

const ownerOfABIJSON = `[{
	"inputs": [{"name": "tokenId", "type": "uint256"}],
	"name": "ownerOf",
	"outputs": [{"name": "", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}]`

const balanceOf1155ABIJSON = `[{
	"inputs": [
		{"name": "account", "type": "address"},
		{"name": "id", "type": "uint256"}
	],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

// ChainOracle resolves holding checks against live contracts over Ethereum
// JSON-RPC.
type ChainOracle struct {
	caller         ContractCaller
	client         *ethclient.Client // nil when constructed from an external caller
	balanceOfABI   abi.ABI
	ownerOfABI     abi.ABI
	balance1155ABI abi.ABI
}

// New creates an oracle connected to an Ethereum RPC endpoint.
func New(rpcURL string) (*ChainOracle, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum RPC: %w", err)
	}
	o, err := NewWithCaller(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	o.client = client
	return o, nil
}

// NewWithCaller creates an oracle on top of an existing contract caller.
// Used to share one RPC client across components and to stub the chain in
// tests.
func NewWithCaller(caller ContractCaller) (*ChainOracle, error) {
	balanceOfABI, err := abi.JSON(strings.NewReader(balanceOfABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing balanceOf ABI: %w", err)
	}
	ownerOfABI, err := abi.JSON(strings.NewReader(ownerOfABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ownerOf ABI: %w", err)
	}
	balance1155ABI, err := abi.JSON(strings.NewReader(balanceOf1155ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ERC-1155 balanceOf ABI: %w", err)
	}

	return &ChainOracle{
		caller:         caller,
		balanceOfABI:   balanceOfABI,
		ownerOfABI:     ownerOfABI,
		balance1155ABI: balance1155ABI,
	}, nil
}

// Holds implements Oracle.
func (o *ChainOracle) Holds(ctx context.Context, rule registry.AssetRule, account common.Address) (bool, error) {
	switch rule.Standard {
	case registry.StandardERC721:
		if rule.TokenID == nil {
			bal, err := o.balanceOf(ctx, rule.Contract, account)
			if err != nil {
				return false, err
			}
			return bal.Sign() > 0, nil
		}
		owner, err := o.ownerOf(ctx, rule.Contract, rule.TokenID)
		if err != nil {
			return false, err
		}
		return owner == account, nil

	case registry.StandardERC1155:
		bal, err := o.balanceOf1155(ctx, rule.Contract, account, rule.TokenID)
		if err != nil {
			return false, err
		}
		return bal.Cmp(rule.Threshold()) > 0, nil

	case registry.StandardERC20:
		bal, err := o.balanceOf(ctx, rule.Contract, account)
		if err != nil {
			return false, err
		}
		return bal.Cmp(rule.Threshold()) > 0, nil

	default:
		return false, fmt.Errorf("%w: %s", registry.ErrUnsupportedAssetType, rule.Standard)
	}
}

// Close shuts down the RPC client when the oracle owns it.
func (o *ChainOracle) Close() {
	if o.client != nil {
		o.client.Close()
	}
}

func (o *ChainOracle) balanceOf(ctx context.Context, contract, account common.Address) (*big.Int, error) {
	output, err := o.view(ctx, o.balanceOfABI, contract, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	bal, ok := output[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected type for balance: %T", ErrOracleFailure, output[0])
	}
	return bal, nil
}

func (o *ChainOracle) ownerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	output, err := o.view(ctx, o.ownerOfABI, contract, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := output[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unexpected type for owner: %T", ErrOracleFailure, output[0])
	}
	return owner, nil
}

func (o *ChainOracle) balanceOf1155(ctx context.Context, contract, account common.Address, tokenID *big.Int) (*big.Int, error) {
	output, err := o.view(ctx, o.balance1155ABI, contract, "balanceOf", account, tokenID)
	if err != nil {
		return nil, err
	}
	bal, ok := output[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected type for balance: %T", ErrOracleFailure, output[0])
	}
	return bal, nil
}

// view packs a call, executes it against the contract, and unpacks the
// result. Every failure is tagged ErrOracleFailure so the evaluator can
// apply its failure policy uniformly.
func (o *ChainOracle) view(ctx context.Context, contractABI abi.ABI, contract common.Address, method string, args ...any) ([]any, error) {
	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: packing %s: %v", ErrOracleFailure, method, err)
	}

	output, err := o.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: calling %s on %s: %v", ErrOracleFailure, method, contract.Hex(), err)
	}

	results, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("%w: unpacking %s: %v", ErrOracleFailure, method, err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: expected 1 return value from %s, got %d", ErrOracleFailure, method, len(results))
	}
	return results, nil
}
