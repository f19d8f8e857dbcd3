// Package store holds the key-value documents every collection lives in.
//
// Each collection is one JSON document. Writers load the whole document,
// change it in memory and put the whole document back; there is no
// compare-and-swap, so concurrent writers race and the last put wins.
package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when no document exists for the key
var ErrKeyNotFound = errors.New("key not found")

// Document keys
const (
	KeyUsers        = "users"
	KeyExtensions   = "extensions"
	KeyDomains      = "domains"
	KeyPayments     = "payments"
	KeySecurityLogs = "securityLogs"
	KeyAuditLogs    = "auditLogs"
	KeySchedule     = "botSchedule"
)

// KeyValueStore is an opaque string-keyed document store
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
