package transfer

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of decimal places of one AVL.
const Decimals = 18

var (
	unit    = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// ToBaseUnits converts a whole AVL amount into base units (amount * 10^18).
// The result must fit the chain's u128 balance.
func ToBaseUnits(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %v", ErrAmountOutOfRange, amount)
	}

	base := new(big.Int).Mul(amount, unit)
	if base.Cmp(maxU128) > 0 {
		return nil, fmt.Errorf("%w: %s AVL exceeds the maximum balance", ErrAmountOutOfRange, amount)
	}
	return base, nil
}

// ParseAmount parses a decimal whole AVL amount.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a whole number", ErrAmountOutOfRange, s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrAmountOutOfRange, amount)
	}
	return amount, nil
}
