// Package domain holds the identifier and amount types shared by every bounded context.
//
// Parsing happens once at trust boundaries (HTTP handlers, config); services
// receive already-validated values.
package domain

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "aidchain/pkg/domain-errors"
)

// UnitID is the sequential identifier of an aid unit. Ids start at 0 and are never reused.
type UnitID uint64

func (u UnitID) String() string { return strconv.FormatUint(uint64(u), 10) }

// ParseUnitID parses a base-10 unit id.
func ParseUnitID(s string) (UnitID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unit id is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid unit id")
	}
	return UnitID(n), nil
}

// ParseUnitIDs parses a comma separated list of unit ids, preserving order and duplicates.
func ParseUnitIDs(s string) ([]UnitID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ids are required")
	}
	parts := strings.Split(s, ",")
	ids := make([]UnitID, 0, len(parts))
	for _, p := range parts {
		id, err := ParseUnitID(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseAddress validates a 0x-prefixed 20-byte hex address. The zero address is
// reserved for "unset" custodian fields and is rejected.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 0x-prefixed")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address")
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "zero address is not allowed")
	}
	return addr, nil
}

// ParseWei parses a positive base-10 integer amount of wei.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	if len(s) > 78 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount is too large")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount must be an integer number of wei")
	}
	if v.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	return v, nil
}
