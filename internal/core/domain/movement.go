package domain

import "time"

type MovementType string

const (
	MovementTypeIn       MovementType = "IN"
	MovementTypeOut      MovementType = "OUT"
	MovementTypeTransfer MovementType = "TRANSFER"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeIn, MovementTypeOut, MovementTypeTransfer:
		return true
	}
	return false
}

// Movement is an append-only audit record. Store ids are nil when the
// movement has no source (IN) or no target (OUT).
type Movement struct {
	ID            string
	ProductID     string
	SourceStoreID *string
	TargetStoreID *string
	Quantity      int
	Type          MovementType
	Timestamp     time.Time
}

func NewTransferMovement(id, productID, sourceStoreID, targetStoreID string, quantity int, at time.Time) Movement {
	return Movement{
		ID:            id,
		ProductID:     productID,
		SourceStoreID: &sourceStoreID,
		TargetStoreID: &targetStoreID,
		Quantity:      quantity,
		Type:          MovementTypeTransfer,
		Timestamp:     at,
	}
}
