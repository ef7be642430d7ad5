package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of the WRLD token.
const TokenDecimals = 18

// ValidateAmount checks if an amount string is a valid decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ValidateAddress checks that s is a 0x-prefixed, 40-hex-character address.
// Mixed-case input must carry a valid EIP-55 checksum; all-lower and
// all-upper hex are accepted as unchecksummed.
func ValidateAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, fmt.Errorf("address cannot be empty")
	}
	if !strings.HasPrefix(s, "0x") {
		return common.Address{}, fmt.Errorf("address must start with 0x")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("address %q must be 40 hex characters", s)
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex() != s {
		return common.Address{}, fmt.Errorf("address %q has an invalid checksum", s)
	}
	return addr, nil
}

// FromWei converts a raw token amount in its smallest unit to a decimal.
// The conversion is exact.
func FromWei(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -TokenDecimals)
}

// ToWei converts a decimal token amount to its smallest unit, truncating
// anything beyond 18 decimal places.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).BigInt()
}

// ParseTokenAmount parses a WRLD amount. Amounts finer than the token's
// precision are rejected: no transfer can ever carry them.
func ParseTokenAmount(amount string) (decimal.Decimal, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}
	if !FromWei(ToWei(*dec)).Equal(*dec) {
		return decimal.Zero, fmt.Errorf("amount %s has more than %d decimal places", amount, TokenDecimals)
	}
	return *dec, nil
}
