package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"aidchain/pkg/domain"
)

// Kind names one of the event kinds recorded by the custody core.
type Kind string

const (
	KindRoleRegistered       Kind = "role_registered"
	KindAuthorityTransferred Kind = "authority_transferred"
	KindContribution         Kind = "contribution"
	KindUnitIssued           Kind = "unit_issued"
	KindUnitAssigned         Kind = "unit_assigned"
	KindCustodyInitialized   Kind = "custody_initialized"
	KindCustodyChanged       Kind = "custody_changed"
)

// Category classifies events for routing and retention.
type Category string

const (
	// CategoryGovernance covers authority actions: registrations, authority hand-over, assignments.
	CategoryGovernance Category = "governance"
	// CategoryFunding covers contributions and unit minting.
	CategoryFunding Category = "funding"
	// CategoryCustody covers the delivery state machine.
	CategoryCustody Category = "custody"
)

var kindCategories = map[Kind]Category{
	KindRoleRegistered:       CategoryGovernance,
	KindAuthorityTransferred: CategoryGovernance,
	KindUnitAssigned:         CategoryGovernance,
	KindContribution:         CategoryFunding,
	KindUnitIssued:           CategoryFunding,
	KindCustodyInitialized:   CategoryCustody,
	KindCustodyChanged:       CategoryCustody,
}

// Category returns the category of the kind. Unknown kinds default to governance.
func (k Kind) Category() Category {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryGovernance
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindCategories[k]
	return ok
}

// Event is emitted from domain logic inside the same transaction as the state
// change it describes. Seq is assigned by the store and reflects call order.
type Event struct {
	ID          uuid.UUID
	Seq         int64
	Kind        Kind
	UnitID      *domain.UnitID
	Actor       string
	Subject     string
	Attributes  map[string]string
	RequestID   string
	Timestamp   time.Time
	PublishedAt *time.Time
}

// Store is the append-only outbox. Append joins the transaction carried by ctx, if any.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	ListByUnit(ctx context.Context, unitID domain.UnitID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
