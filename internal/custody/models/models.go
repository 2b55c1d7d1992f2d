package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/pkg/domain"
	dErrors "aidchain/pkg/domain-errors"
)

// Status is a unit's position in the delivery state machine.
type Status string

const (
	StatusIssued    Status = "Issued"
	StatusInTransit Status = "InTransit"
	StatusDelivered Status = "Delivered"
	StatusClaimed   Status = "Claimed"
)

// Uninitialized is the label reported for units without a status record.
const Uninitialized = "uninitialized"

var statusOrdinal = map[Status]int{
	StatusIssued:    0,
	StatusInTransit: 1,
	StatusDelivered: 2,
	StatusClaimed:   3,
}

// ParseStatus maps a stored label back to a Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := statusOrdinal[st]
	return st, ok
}

// Ordinal is the numeric position of the status, 0 for Issued through 3 for Claimed.
func (s Status) Ordinal() int {
	return statusOrdinal[s]
}

func (s Status) String() string {
	return string(s)
}

// ErrAlreadyClaimed is returned when a claimed unit is claimed again.
var ErrAlreadyClaimed = dErrors.New(dErrors.CodeWrongState, "already claimed")

// Record is the persisted custody state of a unit.
type Record struct {
	UnitID    domain.UnitID
	Status    Status
	UpdatedBy common.Address
	UpdatedAt time.Time
}

// Action names a custody operation a caller may perform next.
type Action string

const (
	ActionInitialize Action = "initialize"
	ActionTransport  Action = "transport"
	ActionDelivery   Action = "delivery"
	ActionClaim      Action = "claim"
)

// Journey is the unit view rendered for a caller.
type Journey struct {
	UnitID     domain.UnitID
	Status     string
	Custodians JourneyCustodians
	Location   string
	Allowed    []Action
}

// JourneyCustodians are the custodians of the unit, zero when unassigned.
type JourneyCustodians struct {
	TransferTeam common.Address
	GroundRelief common.Address
	Recipient    common.Address
}
