package graph

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainRPC is the minimal on-chain surface the builder needs for on-demand
// pair checks: pair discovery, reserve reads and a gas estimate.
type ChainRPC interface {
	// GetPairAddress returns the pool address for a token pair, or "" when
	// the venue has no pool for it.
	GetPairAddress(ctx context.Context, tokenA, tokenB string) (string, error)
	// GetReserves returns the raw reserves of a pool and the address of
	// token0 so the caller can orient them.
	GetReserves(ctx context.Context, pool string) (reserve0, reserve1 *big.Int, token0 string, err error)
	// EstimateGas returns the native-currency cost (in wei-equivalent base
	// units) of one swap on this chain.
	EstimateGas(ctx context.Context) (*big.Int, error)
	// Venue names the DEX this RPC client checks pairs on.
	Venue() string
}

// DecimalsReader is implemented by RPC clients that can read a token's
// decimal count straight from the chain.
type DecimalsReader interface {
	TokenDecimals(ctx context.Context, token string) (int, error)
}

const (
	factoryABIJSON = `[{"constant":true,"inputs":[{"name":"","type":"address"},{"name":"","type":"address"}],"name":"getPair","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	pairABIJSON    = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	erc20ABIJSON   = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

	// swapGasUnits is the conservative gas allowance for one v2-style swap.
	swapGasUnits = 150_000
)

// evmCaller is the slice of the eth client the RPC checker uses. Satisfied
// by *ethclient.Client and by test fakes.
type evmCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EVMChainRPC checks pairs against a uniswap-v2-compatible factory over
// JSON-RPC.
type EVMChainRPC struct {
	client     evmCaller
	factory    common.Address
	venue      string
	factoryABI abi.ABI
	pairABI    abi.ABI
	erc20ABI   abi.ABI
}

// NewEVMChainRPC builds a checker for one factory on one chain.
func NewEVMChainRPC(client evmCaller, factoryAddress, venue string) (*EVMChainRPC, error) {
	if !common.IsHexAddress(factoryAddress) {
		return nil, fmt.Errorf("factory address %q is not a hex address", factoryAddress)
	}
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse factory ABI: %w", err)
	}
	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse pair ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 ABI: %w", err)
	}
	return &EVMChainRPC{
		client:     client,
		factory:    common.HexToAddress(factoryAddress),
		venue:      venue,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		erc20ABI:   erc20ABI,
	}, nil
}

// DialEVMChainRPC connects to a JSON-RPC endpoint and wraps it.
func DialEVMChainRPC(rpcURL, factoryAddress, venue string) (*EVMChainRPC, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewEVMChainRPC(client, factoryAddress, venue)
}

// Venue implements ChainRPC.
func (r *EVMChainRPC) Venue() string { return r.venue }

// GetPairAddress implements ChainRPC.
func (r *EVMChainRPC) GetPairAddress(ctx context.Context, tokenA, tokenB string) (string, error) {
	if !common.IsHexAddress(tokenA) || !common.IsHexAddress(tokenB) {
		return "", fmt.Errorf("pair lookup needs hex addresses, got %q / %q", tokenA, tokenB)
	}
	data, err := r.factoryABI.Pack("getPair", common.HexToAddress(tokenA), common.HexToAddress(tokenB))
	if err != nil {
		return "", fmt.Errorf("pack getPair: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.factory, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("getPair call: %w", err)
	}
	out, err := r.factoryABI.Unpack("getPair", raw)
	if err != nil {
		return "", fmt.Errorf("unpack getPair: %w", err)
	}
	pool := out[0].(common.Address)
	if pool == (common.Address{}) {
		return "", nil
	}
	return pool.Hex(), nil
}

// GetReserves implements ChainRPC.
func (r *EVMChainRPC) GetReserves(ctx context.Context, pool string) (*big.Int, *big.Int, string, error) {
	if !common.IsHexAddress(pool) {
		return nil, nil, "", fmt.Errorf("pool %q is not a hex address", pool)
	}
	poolAddr := common.HexToAddress(pool)

	data, err := r.pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, "", fmt.Errorf("pack getReserves: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: data}, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("getReserves call: %w", err)
	}
	out, err := r.pairABI.Unpack("getReserves", raw)
	if err != nil {
		return nil, nil, "", fmt.Errorf("unpack getReserves: %w", err)
	}
	reserve0 := out[0].(*big.Int)
	reserve1 := out[1].(*big.Int)

	data, err = r.pairABI.Pack("token0")
	if err != nil {
		return nil, nil, "", fmt.Errorf("pack token0: %w", err)
	}
	raw, err = r.client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: data}, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("token0 call: %w", err)
	}
	out, err = r.pairABI.Unpack("token0", raw)
	if err != nil {
		return nil, nil, "", fmt.Errorf("unpack token0: %w", err)
	}
	token0 := out[0].(common.Address)

	return reserve0, reserve1, token0.Hex(), nil
}

// TokenDecimals implements DecimalsReader with an ERC-20 decimals() call.
func (r *EVMChainRPC) TokenDecimals(ctx context.Context, token string) (int, error) {
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("token %q is not a hex address", token)
	}
	tokenAddr := common.HexToAddress(token)

	data, err := r.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals call: %w", err)
	}
	out, err := r.erc20ABI.Unpack("decimals", raw)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	return int(out[0].(uint8)), nil
}

// EstimateGas implements ChainRPC using the node's suggested gas price and a
// fixed per-swap gas allowance.
func (r *EVMChainRPC) EstimateGas(ctx context.Context) (*big.Int, error) {
	price, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return new(big.Int).Mul(price, big.NewInt(swapGasUnits)), nil
}
