package storage

import "github.com/google/uuid"

// FeeTier grants DiscountRate (billionths) to owners whose trailing volume
// reaches MinVolume.
type FeeTier struct {
	ID           uuid.UUID
	Name         string
	DiscountRate uint64
	MinVolume    string
}
