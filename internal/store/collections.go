package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"freedomain/internal/models"
)

// Collections reads and writes whole collections as JSON documents.
// Every Save replaces the entire document.
type Collections struct {
	kv KeyValueStore
}

// NewCollections wraps a key-value store with typed collection accessors
func NewCollections(kv KeyValueStore) *Collections {
	return &Collections{kv: kv}
}

// Users loads the user collection
func (c *Collections) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	_, err := c.load(ctx, KeyUsers, &users)
	return users, err
}

// SaveUsers replaces the user collection
func (c *Collections) SaveUsers(ctx context.Context, users []models.User) error {
	return c.save(ctx, KeyUsers, users)
}

// Extensions loads the extension catalog. The second result is false when
// the catalog has never been written.
func (c *Collections) Extensions(ctx context.Context) ([]models.Extension, bool, error) {
	var extensions []models.Extension
	found, err := c.load(ctx, KeyExtensions, &extensions)
	return extensions, found, err
}

// SaveExtensions replaces the extension catalog
func (c *Collections) SaveExtensions(ctx context.Context, extensions []models.Extension) error {
	return c.save(ctx, KeyExtensions, extensions)
}

// Domains loads the domain collection
func (c *Collections) Domains(ctx context.Context) ([]models.Domain, error) {
	var domains []models.Domain
	_, err := c.load(ctx, KeyDomains, &domains)
	return domains, err
}

// SaveDomains replaces the domain collection
func (c *Collections) SaveDomains(ctx context.Context, domains []models.Domain) error {
	return c.save(ctx, KeyDomains, domains)
}

// Payments loads the payment collection
func (c *Collections) Payments(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	_, err := c.load(ctx, KeyPayments, &payments)
	return payments, err
}

// SavePayments replaces the payment collection
func (c *Collections) SavePayments(ctx context.Context, payments []models.Payment) error {
	return c.save(ctx, KeyPayments, payments)
}

// SecurityLogs loads the security log, newest first
func (c *Collections) SecurityLogs(ctx context.Context) ([]models.SecurityLog, error) {
	var logs []models.SecurityLog
	_, err := c.load(ctx, KeySecurityLogs, &logs)
	return logs, err
}

// SaveSecurityLogs replaces the security log
func (c *Collections) SaveSecurityLogs(ctx context.Context, logs []models.SecurityLog) error {
	return c.save(ctx, KeySecurityLogs, logs)
}

// AuditLogs loads the action history, newest first
func (c *Collections) AuditLogs(ctx context.Context) ([]models.SecurityLog, error) {
	var logs []models.SecurityLog
	_, err := c.load(ctx, KeyAuditLogs, &logs)
	return logs, err
}

// SaveAuditLogs replaces the action history
func (c *Collections) SaveAuditLogs(ctx context.Context, logs []models.SecurityLog) error {
	return c.save(ctx, KeyAuditLogs, logs)
}

// Schedule loads the security schedule, falling back to the default window
func (c *Collections) Schedule(ctx context.Context) (models.SecuritySchedule, error) {
	schedule := models.DefaultSecuritySchedule()
	_, err := c.load(ctx, KeySchedule, &schedule)
	return schedule, err
}

// SaveSchedule replaces the security schedule
func (c *Collections) SaveSchedule(ctx context.Context, schedule models.SecuritySchedule) error {
	return c.save(ctx, KeySchedule, schedule)
}

func (c *Collections) load(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Collections) save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.kv.Put(ctx, key, data)
}
