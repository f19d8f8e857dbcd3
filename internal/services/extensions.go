package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"freedomain/internal/config"
	"freedomain/internal/models"
	"freedomain/internal/store"
)

// ExtensionService owns the catalog of purchasable suffixes
type ExtensionService struct {
	store   *store.Collections
	admin   Admin
	monitor *SecurityMonitor
}

// NewExtensionService creates a new extension catalog
func NewExtensionService(collections *store.Collections, admin Admin, monitor *SecurityMonitor) *ExtensionService {
	return &ExtensionService{
		store:   collections,
		admin:   admin,
		monitor: monitor,
	}
}

// Seed writes the given extensions when the catalog has never been written
func (s *ExtensionService) Seed(ctx context.Context, seeds []config.ExtensionSeed) error {
	_, found, err := s.store.Extensions(ctx)
	if err != nil {
		return upstream("load extensions", err)
	}
	if found {
		return nil
	}

	extensions := make([]models.Extension, 0, len(seeds))
	for _, seed := range seeds {
		if !strings.HasPrefix(seed.Name, ".") {
			log.Printf("Skipping seed extension %q: must start with '.'", seed.Name)
			continue
		}
		extensions = append(extensions, models.Extension{
			Name:        seed.Name,
			Price:       seed.Price,
			PaymentLink: seed.PaymentLink,
		})
	}

	if err := s.store.SaveExtensions(ctx, extensions); err != nil {
		return upstream("save extensions", err)
	}
	log.Printf("Seeded %d extensions", len(extensions))
	return nil
}

// List returns the catalog in insertion order
func (s *ExtensionService) List(ctx context.Context) ([]models.Extension, error) {
	extensions, _, err := s.store.Extensions(ctx)
	if err != nil {
		return nil, upstream("load extensions", err)
	}
	if extensions == nil {
		extensions = []models.Extension{}
	}
	return extensions, nil
}

// Add appends an extension to the catalog
func (s *ExtensionService) Add(ctx context.Context, adminUsername string, ext models.Extension) error {
	if err := s.admin.require(adminUsername); err != nil {
		return err
	}
	if len(ext.Name) < 2 || !strings.HasPrefix(ext.Name, ".") {
		return ErrInvalidExtension
	}
	if ext.Price < 0 {
		return ErrInvalidInput
	}

	extensions, _, err := s.store.Extensions(ctx)
	if err != nil {
		return upstream("load extensions", err)
	}

	for _, e := range extensions {
		if e.Name == ext.Name {
			return ErrDuplicateExtension
		}
	}

	extensions = append(extensions, ext)
	if err := s.store.SaveExtensions(ctx, extensions); err != nil {
		return upstream("save extensions", err)
	}

	s.monitor.OnAction(ctx, adminUsername, ActionExtensionAdd,
		fmt.Sprintf("Extension added: %s (price %d)", ext.Name, ext.Price))
	return nil
}

// Remove deletes an extension by exact name. An absent name is a no-op.
func (s *ExtensionService) Remove(ctx context.Context, adminUsername, name string) error {
	if err := s.admin.require(adminUsername); err != nil {
		return err
	}

	extensions, _, err := s.store.Extensions(ctx)
	if err != nil {
		return upstream("load extensions", err)
	}

	kept := make([]models.Extension, 0, len(extensions))
	for _, e := range extensions {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(extensions) {
		return nil
	}

	if err := s.store.SaveExtensions(ctx, kept); err != nil {
		return upstream("save extensions", err)
	}

	s.monitor.OnAction(ctx, adminUsername, ActionExtensionDelete, fmt.Sprintf("Extension deleted: %s", name))
	return nil
}

// Resolve finds the extension fullDomain ends with, preferring the longest
// suffix. It returns nil when no extension matches.
func (s *ExtensionService) Resolve(ctx context.Context, fullDomain string) (*models.Extension, error) {
	extensions, _, err := s.store.Extensions(ctx)
	if err != nil {
		return nil, upstream("load extensions", err)
	}

	var match *models.Extension
	for i := range extensions {
		e := &extensions[i]
		if len(fullDomain) <= len(e.Name) || !strings.HasSuffix(fullDomain, e.Name) {
			continue
		}
		if match == nil || len(e.Name) > len(match.Name) {
			match = e
		}
	}
	return match, nil
}
