package dex

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	minInt24 = big.NewInt(-1 << 23)
	maxInt24 = big.NewInt((1 << 23) - 1)
)

// bytes32ToString decodes legacy tokens that return symbol/name as bytes32.
func bytes32ToString(value interface{}) (string, bool) {
	var raw []byte
	switch v := value.(type) {
	case [32]byte:
		raw = v[:]
	case []byte:
		raw = v
	default:
		return "", false
	}
	return string(bytes.TrimRight(raw, "\x00")), true
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// asBigInt copies any integer value the ABI unpacker can produce.
func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil int")
		}
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.BitLen() > 8 {
		return 0, fmt.Errorf("uint8 overflow: %s", n)
	}
	return uint8(n.Uint64()), nil
}

func asUint24(value interface{}) (uint32, error) {
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.BitLen() > 24 {
		return 0, fmt.Errorf("uint24 overflow: %s", n)
	}
	return uint32(n.Uint64()), nil
}

func int24FromBig(value *big.Int) (int32, error) {
	if value == nil {
		return 0, fmt.Errorf("nil int24")
	}
	if value.Cmp(minInt24) < 0 || value.Cmp(maxInt24) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value)
	}
	return int32(value.Int64()), nil
}

func asInt24(value interface{}) (int32, error) {
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	return int24FromBig(n)
}
