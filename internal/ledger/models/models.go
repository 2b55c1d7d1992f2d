package models

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/pkg/domain"
)

// Custodians are the three addresses bound to a unit at assignment time.
// Either all are zero (unassigned) or all are set.
type Custodians struct {
	TransferTeam common.Address
	GroundRelief common.Address
	Recipient    common.Address
}

// Assigned reports whether the custodians have been set.
func (c Custodians) Assigned() bool {
	return c.TransferTeam != (common.Address{})
}

// Unit is one threshold-funded allocation.
type Unit struct {
	ID         domain.UnitID
	Donors     []common.Address
	Custodians Custodians
	Location   string
	IssuedAt   time.Time
	AssignedAt *time.Time
}

// IsAssigned reports whether custodians are set.
func (u *Unit) IsAssigned() bool {
	return u.Custodians.Assigned()
}

// State is the ledger's running accumulator.
type State struct {
	Pool       *big.Int
	NextUnitID domain.UnitID
}

// Params are the fixed funding rules.
type Params struct {
	Threshold       *big.Int
	MinDonation     *big.Int
	MaxUnitsPerCall int
}

// MaxContribution is the largest amount accepted with the given pool balance.
func (p Params) MaxContribution(pool *big.Int) *big.Int {
	limit := new(big.Int).Mul(p.Threshold, big.NewInt(int64(p.MaxUnitsPerCall)+1))
	limit.Sub(limit, big.NewInt(1))
	limit.Sub(limit, pool)
	if limit.Sign() < 0 {
		return new(big.Int)
	}
	return limit
}

// Mint splits pool+amount into the number of units to mint and the remainder.
func (p Params) Mint(pool, amount *big.Int) (int64, *big.Int) {
	total := new(big.Int).Add(pool, amount)
	units, rem := new(big.Int).QuoRem(total, p.Threshold, new(big.Int))
	if !units.IsInt64() {
		return math.MaxInt64, rem
	}
	return units.Int64(), rem
}

// Contribution is the outcome of one contribute call.
type Contribution struct {
	Donor       common.Address
	Amount      *big.Int
	Balance     *big.Int
	Minted      []domain.UnitID
	FirstUnitID domain.UnitID
	Pool        *big.Int
}

// Overview is the public ledger summary.
type Overview struct {
	Params          Params
	Pool            *big.Int
	UnitCount       uint64
	MaxContribution *big.Int
}
