package models

import (
	"time"
)

// DomainStatus is the lifecycle state of a registered domain
type DomainStatus string

const (
	DomainActive    DomainStatus = "active"
	DomainPending   DomainStatus = "pending"
	DomainSuspended DomainStatus = "suspended"
)

// Domain represents a registered subdomain
type Domain struct {
	FullName    string       `json:"full_name"`   // Label + extension, unique
	Owner       string       `json:"owner"`       // Username of the registrant
	Nameservers []string     `json:"nameservers"` // 1-4 hostnames, ordered
	Status      DomainStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Extension represents a purchasable domain suffix
type Extension struct {
	Name        string `json:"name"`                   // Must start with '.'
	Price       int    `json:"price"`                  // 0 means free
	PaymentLink string `json:"payment_link,omitempty"` // Optional checkout URL
}

// Document is a single key-value row holding a JSON-serialized collection
type Document struct {
	Key       string    `gorm:"primarykey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
