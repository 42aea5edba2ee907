package types

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/spf13/cast"
)

// Index is a selector index as the contract stores it (uint8). Every index
// held by an oracle and every selector carried by an event goes through this
// type, so membership is plain value equality.
type Index uint8

func (i Index) String() string {
	return strconv.FormatUint(uint64(i), 10)
}

// ParseIndex converts a wire or user supplied value into an Index. Strings
// are read as base-10 only, so "07" and "7" are the same index.
func ParseIndex(v any) (Index, error) {
	switch v := v.(type) {
	case Index:
		return v, nil
	case uint8:
		return Index(v), nil
	case string:
		return parseIndexString(v)
	case json.Number:
		return parseIndexString(v.String())
	case *big.Int:
		if v == nil || v.Sign() < 0 || !v.IsUint64() || v.Uint64() > math.MaxUint8 {
			return 0, errorsmod.Wrapf(ErrInvalidIndex, "%v", v)
		}
		return Index(v.Uint64()), nil
	case float32, float64:
		f := cast.ToFloat64(v)
		if f != math.Trunc(f) {
			return 0, errorsmod.Wrapf(ErrInvalidIndex, "non-integral %v", v)
		}
		return indexFromInt(int64(f))
	case uint64:
		if v > math.MaxUint8 {
			return 0, errorsmod.Wrapf(ErrInvalidIndex, "%d out of range", v)
		}
		return Index(v), nil
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, errorsmod.Wrapf(ErrInvalidIndex, "%v (%T)", v, v)
	}

	return indexFromInt(n)
}

// MustParseIndex is ParseIndex for constants and tests.
func MustParseIndex(v any) Index {
	index, err := ParseIndex(v)
	if err != nil {
		panic(err)
	}

	return index
}

// ParseIndexes converts every element, failing on the first invalid one.
func ParseIndexes[T any](values []T) ([]Index, error) {
	indexes := make([]Index, 0, len(values))
	for _, v := range values {
		index, err := ParseIndex(v)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}

	return indexes, nil
}

func parseIndexString(s string) (Index, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, errorsmod.Wrapf(ErrInvalidIndex, "%q", s)
	}

	return Index(n), nil
}

func indexFromInt(n int64) (Index, error) {
	if n < 0 || n > math.MaxUint8 {
		return 0, errorsmod.Wrapf(ErrInvalidIndex, "%d out of range", n)
	}

	return Index(n), nil
}
