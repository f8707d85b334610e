package messages

import "time"

// ShipmentStatusChanged is published after a successful status transition or
// bulk update so downstream consumers (notifications, settlement) can react.
type ShipmentStatusChanged struct {
	TrackingCode string    `json:"tracking_code"`
	Status       string    `json:"status"`
	Actor        string    `json:"actor,omitempty"`
	CourierRef   *string   `json:"courier_ref,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ShipmentScanned is the inbound scan event consumed from the scan topic and
// fed to the ingestion handler.
type ShipmentScanned struct {
	TrackingCode    string `json:"tracking_code"`
	TargetStatus    string `json:"target_status,omitempty"`
	ActorCredential string `json:"actor_credential,omitempty"`
}
