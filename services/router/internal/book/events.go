package book

import "github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/kafka"

const (
	DefaultClosedTopic = "orders.closed"

	CloseReasonFilled    = "filled"
	CloseReasonCancelled = "cancelled"
)

// OrderClosedEvent is published when a resting order leaves the book.
type OrderClosedEvent struct {
	kafka.Envelope
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	OrderID          string `json:"order_id"`
	Reason           string `json:"reason"`
	Quantity         uint64 `json:"quantity,string"`
	FilledQuantity   uint64 `json:"filled_quantity,string"`
	ClosedAt         string `json:"closed_at"`
}
