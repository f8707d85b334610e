package models

import "time"

// Shipment statuses. "delivered" is terminal, "exception" is a side-branch
// reachable from any non-terminal status.
const (
	StatusCreated        = "created"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusException      = "exception"
)

func IsValidStatus(s string) bool {
	switch s {
	case StatusCreated, StatusOutForDelivery, StatusDelivered, StatusException:
		return true
	}
	return false
}

// Shipment is one row per tracking code (AWB).
type Shipment struct {
	TrackingCode     string    `json:"trackingCode"`
	CurrentStatus    string    `json:"currentStatus"`
	CourierRef       *string   `json:"courierRef,omitempty"`
	SenderName       string    `json:"senderName"`
	ReceiverName     string    `json:"receiverName"`
	ReceiverCity     string    `json:"receiverCity"`
	ReceiverDistrict string    `json:"receiverDistrict"`
	Origin           string    `json:"origin"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HistoryEntry is append-only: inserted once per status change, never
// updated or deleted. In a conflict with Shipment.CurrentStatus the
// history log wins.
type HistoryEntry struct {
	ID           uint64    `json:"id"`
	TrackingCode string    `json:"trackingCode"`
	Status       string    `json:"status"`
	Location     string    `json:"location,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Actor        string    `json:"actor"`
	CourierRef   *string   `json:"courierRef,omitempty"`
	ProofRef     *string   `json:"proofRef,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ShipmentCreateInput struct {
	TrackingCode     string
	CurrentStatus    string
	CourierRef       *string
	SenderName       string
	ReceiverName     string
	ReceiverCity     string
	ReceiverDistrict string
	Origin           string
}

// ManifestDescriptor carries the descriptive fields a lookup source knows
// about a tracking code, plus the provenance tag of the source that won.
type ManifestDescriptor struct {
	TrackingCode     string
	SenderName       string
	ReceiverName     string
	ReceiverCity     string
	ReceiverDistrict string
	Source           string
}
