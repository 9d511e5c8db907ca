package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller executes eth_call. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Slot0 holds the slot0 fields read on refresh.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// Reader performs the typed contract reads used by the registry and the
// snapshot writer. A nil block reads latest state.
type Reader struct {
	caller Caller
}

func NewReader(caller Caller) *Reader {
	return &Reader{caller: caller}
}

// TokenSymbol reads symbol(), falling back to the bytes32 encoding.
func (r *Reader) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	return r.stringOrBytes32(ctx, token, "symbol")
}

// TokenName reads name(), falling back to the bytes32 encoding.
func (r *Reader) TokenName(ctx context.Context, token common.Address) (string, error) {
	return r.stringOrBytes32(ctx, token, "name")
}

func (r *Reader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := r.call(ctx, token, parsed, "decimals", nil)
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

// BalanceOf reads token.balanceOf(owner).
func (r *Reader) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := r.call(ctx, token, parsed, "balanceOf", block, owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (r *Reader) Slot0(ctx context.Context, pool common.Address, block *big.Int) (Slot0, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return Slot0{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := r.call(ctx, pool, poolABI, "slot0", block)
	if err != nil {
		return Slot0{}, err
	}
	if len(values) < 2 {
		return Slot0{}, fmt.Errorf("slot0 returned %d values", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 sqrt price: %w", err)
	}
	tick, err := asInt24(values[1])
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 tick: %w", err)
	}
	return Slot0{SqrtPriceX96: sqrt, Tick: tick}, nil
}

func (r *Reader) Liquidity(ctx context.Context, pool common.Address, block *big.Int) (*big.Int, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := r.call(ctx, pool, poolABI, "liquidity", block)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (r *Reader) stringOrBytes32(ctx context.Context, token common.Address, method string) (string, error) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return "", fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := r.call(ctx, token, stringABI, method, nil)
	if err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}

	bytes32ABI, abiErr := erc20ABIBytes32Instance()
	if abiErr != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", abiErr)
	}
	values, fallbackErr := r.call(ctx, token, bytes32ABI, method, nil)
	if fallbackErr != nil {
		if err != nil {
			return "", err
		}
		return "", fallbackErr
	}
	s, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return s, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}
