// Package policy decides who may perform which operation. It is a pure
// function of the caller, the authority, the unit's custodians and its
// current custody status, and never touches storage.
package policy

import (
	"github.com/ethereum/go-ethereum/common"

	custodymodels "aidchain/internal/custody/models"
	ledgermodels "aidchain/internal/ledger/models"
	dErrors "aidchain/pkg/domain-errors"
)

// Operation is a state-changing action subject to authorization.
type Operation string

const (
	OpRegisterParticipant Operation = "register_participant"
	OpTransferAuthority   Operation = "transfer_authority"
	OpAssign              Operation = "assign"
	OpInitialize          Operation = "initialize"
	OpAdvanceTransport    Operation = "advance_transport"
	OpAdvanceDelivery     Operation = "advance_delivery"
	OpAdvanceClaim        Operation = "advance_claim"
)

// Subject is the state an authorization decision is made against.
// Status is nil when the unit has no custody record.
type Subject struct {
	Caller     common.Address
	Authority  common.Address
	Custodians ledgermodels.Custodians
	Status     *custodymodels.Status
}

type transition struct {
	from      custodymodels.Status
	to        custodymodels.Status
	custodian func(ledgermodels.Custodians) common.Address
	denied    string
	wrong     string
}

var transitions = map[Operation]transition{
	OpAdvanceTransport: {
		from:      custodymodels.StatusIssued,
		to:        custodymodels.StatusInTransit,
		custodian: func(c ledgermodels.Custodians) common.Address { return c.TransferTeam },
		denied:    "only the transfer team can mark the unit in transit",
		wrong:     "unit must be Issued to start transport",
	},
	OpAdvanceDelivery: {
		from:      custodymodels.StatusInTransit,
		to:        custodymodels.StatusDelivered,
		custodian: func(c ledgermodels.Custodians) common.Address { return c.GroundRelief },
		denied:    "only the ground relief team can mark the unit delivered",
		wrong:     "unit must be InTransit to be delivered",
	},
	OpAdvanceClaim: {
		from:      custodymodels.StatusDelivered,
		to:        custodymodels.StatusClaimed,
		custodian: func(c ledgermodels.Custodians) common.Address { return c.Recipient },
		denied:    "only the recipient can claim the unit",
		wrong:     "unit must be Delivered to be claimed",
	},
}

// Authorize returns nil when the caller may perform op against s.
// Identity is checked before state: a non-custodian gets Unauthorized even
// when the unit is in the wrong state.
func Authorize(op Operation, s Subject) error {
	switch op {
	case OpRegisterParticipant, OpTransferAuthority, OpAssign:
		if s.Authority == (common.Address{}) || s.Caller != s.Authority {
			return dErrors.New(dErrors.CodeUnauthorized, "only the relief agency can perform this operation")
		}
		return nil
	case OpInitialize:
		if !s.Custodians.Assigned() {
			return dErrors.New(dErrors.CodeWrongState, "unit must be assigned before custody starts")
		}
		if s.Status != nil {
			return dErrors.New(dErrors.CodeAlreadyInitialized, "custody already initialized")
		}
		return nil
	}

	t, ok := transitions[op]
	if !ok {
		return dErrors.New(dErrors.CodeInternal, "unknown operation")
	}
	custodian := t.custodian(s.Custodians)
	if custodian == (common.Address{}) || s.Caller != custodian {
		return dErrors.New(dErrors.CodeUnauthorized, t.denied)
	}
	if s.Status == nil || *s.Status != t.from {
		if op == OpAdvanceClaim && s.Status != nil && *s.Status == custodymodels.StatusClaimed {
			return custodymodels.ErrAlreadyClaimed
		}
		return dErrors.New(dErrors.CodeWrongState, t.wrong)
	}
	return nil
}

// Next returns the status an advance operation moves to.
func Next(op Operation) (custodymodels.Status, bool) {
	t, ok := transitions[op]
	if !ok {
		return "", false
	}
	return t.to, true
}

// AllowedActions lists the custody actions the caller could perform right now.
func AllowedActions(s Subject) []custodymodels.Action {
	var out []custodymodels.Action
	if Authorize(OpInitialize, s) == nil {
		out = append(out, custodymodels.ActionInitialize)
	}
	for _, step := range []struct {
		op     Operation
		action custodymodels.Action
	}{
		{OpAdvanceTransport, custodymodels.ActionTransport},
		{OpAdvanceDelivery, custodymodels.ActionDelivery},
		{OpAdvanceClaim, custodymodels.ActionClaim},
	} {
		if Authorize(step.op, s) == nil {
			out = append(out, step.action)
		}
	}
	return out
}
