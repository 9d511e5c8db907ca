package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an ERC20 directory entry. Records are immutable once stored.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// NormalizeAddress validates a hex address and returns its lowercase form,
// which is the key used for every token and pool record.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address: %s", address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// MustNormalizeAddress is NormalizeAddress for trusted inputs such as decoded topics.
func MustNormalizeAddress(address string) string {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		panic(err)
	}
	return normalized
}
