package aggregation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrNotNumeric is returned by ToDecimal for values with no numeric reading.
var ErrNotNumeric = errors.New("value is not numeric")

// ToDecimal converts a resolved record value to an exact decimal.
// Integers, floats, decimals, numeric strings, json.Number and bools (1/0) are
// accepted. nil, NaN, infinities and every other type are rejected.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero, fmt.Errorf("%w: nil", ErrNotNumeric)
		}
		return *val, nil
	case float64:
		return fromFloat(val)
	case float32:
		return fromFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int8:
		return decimal.NewFromInt(int64(val)), nil
	case int16:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case uint:
		return fromUint(uint64(val)), nil
	case uint8:
		return decimal.NewFromInt(int64(val)), nil
	case uint16:
		return decimal.NewFromInt(int64(val)), nil
	case uint32:
		return decimal.NewFromInt(int64(val)), nil
	case uint64:
		return fromUint(val), nil
	case bool:
		if val {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case json.Number:
		return parseDecimal(string(val))
	case string:
		return parseDecimal(val)
	case nil:
		return decimal.Zero, fmt.Errorf("%w: nil", ErrNotNumeric)
	default:
		return decimal.Zero, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, f)
	}
	return decimal.NewFromFloat(f), nil
}

func fromUint(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return d, nil
}
