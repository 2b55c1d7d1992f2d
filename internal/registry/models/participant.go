package models

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dErrors "aidchain/pkg/domain-errors"
)

// Role is the custody role a participant holds.
type Role string

const (
	RoleNone          Role = "none"
	RoleTransporter   Role = "transporter"
	RoleGroundHandler Role = "ground_handler"
	RoleRecipient     Role = "recipient"
)

// AssignableRoles lists the roles a participant can be registered with, in display order.
var AssignableRoles = []Role{RoleTransporter, RoleGroundHandler, RoleRecipient}

// NormalizeRole maps user input onto a Role without validating it.
func NormalizeRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "ground_relief", "groundhandler":
		return RoleGroundHandler
	default:
		return r
	}
}

// ParseRole accepts the role names case-insensitively. "none" and unknown names are rejected.
func ParseRole(s string) (Role, error) {
	r := NormalizeRole(s)
	if !r.Assignable() {
		return RoleNone, dErrors.New(dErrors.CodeInvalidInput, "role must be one of transporter, ground_handler, recipient")
	}
	return r, nil
}

// Assignable reports whether a participant can be registered with r.
func (r Role) Assignable() bool {
	switch r {
	case RoleTransporter, RoleGroundHandler, RoleRecipient:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Participant is a registered address. Records are overwritten on re-registration, never deleted.
type Participant struct {
	Address      common.Address
	Role         Role
	Location     string
	RegisteredAt time.Time
}

// NewParticipant validates and builds a participant record. Location is trimmed.
func NewParticipant(addr common.Address, role Role, location string, now time.Time) (*Participant, error) {
	if addr == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "participant address is required")
	}
	if !role.Assignable() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "role must be one of transporter, ground_handler, recipient")
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "location is required")
	}
	return &Participant{
		Address:      addr,
		Role:         role,
		Location:     location,
		RegisteredAt: now,
	}, nil
}

// DisplayID is the decentralized identifier shown for the participant.
func (p Participant) DisplayID() string {
	return DisplayID(p.Address)
}

// DisplayID formats an address as did:aid:<lowercase hex>.
func DisplayID(addr common.Address) string {
	return "did:aid:" + strings.ToLower(addr.Hex())
}
