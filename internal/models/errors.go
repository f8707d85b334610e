package models

import "errors"

// Sentinel errors shared by the storage and service layers. Wrapped values
// are matched with errors.Is.
var (
	ErrShipmentNotFound  = errors.New("shipment not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidFormat     = errors.New("tracking code format is not recognized")
	ErrTerminalState     = errors.New("shipment is in a terminal state")
	ErrAlreadyDelivered  = errors.New("shipment already delivered")
	ErrInvalidTransition = errors.New("booking transition not allowed")
)
