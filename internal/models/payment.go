package models

import (
	"time"
)

// PaymentStatus is the approval state of a payment request
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment represents a pending charge that gates creation of a priced domain
type Payment struct {
	ID          string        `json:"id"` // Time-ordered (UUIDv7)
	Username    string        `json:"username"`
	Domain      string        `json:"domain"` // Full domain name
	Price       int           `json:"price"`
	Nameservers []string      `json:"nameservers"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Terminal reports whether the payment has been approved or rejected
func (p Payment) Terminal() bool {
	return p.Status == PaymentApproved || p.Status == PaymentRejected
}
