package models

import "time"

// Booking statuses. Both "verified" and "rejected" are terminal: a booking
// transitions at most once.
const (
	BookingStatusPending  = "pending"
	BookingStatusVerified = "verified"
	BookingStatusRejected = "rejected"
)

// Payment / settlement statuses shared by Booking and ManifestRecord.
const (
	PaymentOutstanding = "outstanding"
	PaymentSettled     = "settled"
)

// Booking is an agent-submitted request, pre-operational. Pricing fields are
// editable until the booking is promoted or rejected.
type Booking struct {
	ID               uint64     `json:"id"`
	TrackingCode     string     `json:"trackingCode"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"paymentStatus"`
	SenderName       string     `json:"senderName"`
	ReceiverName     string     `json:"receiverName"`
	ReceiverCity     string     `json:"receiverCity"`
	ReceiverDistrict string     `json:"receiverDistrict"`
	WeightKg         float64    `json:"weightKg"`
	PricePerKg       int64      `json:"pricePerKg"`
	Subtotal         int64      `json:"subtotal"`
	AdminSurcharge   int64      `json:"adminSurcharge"`
	TransitSurcharge int64      `json:"transitSurcharge"`
	Total            int64      `json:"total"`
	RejectionReason  *string    `json:"rejectionReason,omitempty"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ManifestRecord is the operational, billable record derived from a verified
// booking (or entered directly). Created exactly once; afterwards only the
// settlement fields move.
type ManifestRecord struct {
	ID               uint64    `json:"id"`
	TrackingCode     string    `json:"trackingCode"`
	BookingID        *uint64   `json:"bookingId,omitempty"`
	SenderName       string    `json:"senderName"`
	ReceiverName     string    `json:"receiverName"`
	ReceiverCity     string    `json:"receiverCity"`
	ReceiverDistrict string    `json:"receiverDistrict"`
	WeightKg         float64   `json:"weightKg"`
	PricePerKg       int64     `json:"pricePerKg"`
	Subtotal         int64     `json:"subtotal"`
	AdminSurcharge   int64     `json:"adminSurcharge"`
	TransitSurcharge int64     `json:"transitSurcharge"`
	Total            int64     `json:"total"`
	SettlementStatus string    `json:"settlementStatus"`
	DeductionAmount  int64     `json:"deductionAmount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// BookingEdits are the human-edited numeric overrides applied at promotion.
type BookingEdits struct {
	WeightKg         float64
	PricePerKg       int64
	AdminSurcharge   int64
	TransitSurcharge int64
}
