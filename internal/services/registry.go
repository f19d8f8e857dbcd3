package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"freedomain/internal/models"
	"freedomain/internal/store"
)

// MaxNameservers is the most nameservers a domain may delegate to
const MaxNameservers = 4

// DomainRequest is a request to register fullDomain
type DomainRequest struct {
	Username    string
	FullDomain  string
	Nameservers []string
	// DeclaredPrice is the price the client showed the user. It is used
	// only when no extension matches; nil means the client sent none.
	DeclaredPrice *int
}

// DomainResult is the outcome of a domain request. Exactly one of Domain
// and Payment is set.
type DomainResult struct {
	Domain          *models.Domain  `json:"domain,omitempty"`
	Payment         *models.Payment `json:"payment,omitempty"`
	PaymentRequired bool            `json:"payment_required"`
	PaymentLink     string          `json:"payment_link,omitempty"`
}

// Availability describes whether a name can be requested
type Availability struct {
	Domain      string            `json:"domain"`
	Available   bool              `json:"available"`
	Extension   *models.Extension `json:"extension,omitempty"`
	Price       int               `json:"price"`
	PaymentLink string            `json:"payment_link,omitempty"`
}

// RegistryService owns domain names and the request lifecycle
type RegistryService struct {
	store      *store.Collections
	admin      Admin
	users      *UserService
	extensions *ExtensionService
	monitor    *SecurityMonitor
	dns        Provisioner
	now        func() time.Time
}

// NewRegistryService creates a new domain registry. dns may be nil.
func NewRegistryService(collections *store.Collections, admin Admin, users *UserService, extensions *ExtensionService, monitor *SecurityMonitor, dns Provisioner) *RegistryService {
	return &RegistryService{
		store:      collections,
		admin:      admin,
		users:      users,
		extensions: extensions,
		monitor:    monitor,
		dns:        dns,
		now:        time.Now,
	}
}

// RequestDomain registers a free domain immediately, or opens a pending
// payment when the extension is priced. The admin never pays.
//
// The existence check and the write are separate whole-document reads, so
// two concurrent requests for the same free name can both succeed.
func (s *RegistryService) RequestDomain(ctx context.Context, req DomainRequest) (*DomainResult, error) {
	if !validDomainName(req.FullDomain) {
		return nil, ErrInvalidInput
	}
	nameservers, err := normalizeNameservers(req.Nameservers)
	if err != nil {
		return nil, err
	}

	exists, err := s.exists(ctx, req.FullDomain)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDomainAlreadyExists
	}

	eligible, err := s.users.IsEligible(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrAccountNotEligible
	}

	ext, err := s.extensions.Resolve(ctx, req.FullDomain)
	if err != nil {
		return nil, err
	}

	price := 0
	paymentLink := ""
	switch {
	case ext != nil:
		price = ext.Price
		paymentLink = ext.PaymentLink
		if req.DeclaredPrice != nil && *req.DeclaredPrice != ext.Price {
			s.monitor.OnAction(ctx, req.Username, ActionPaymentManipulation,
				fmt.Sprintf("Declared price %d for %s, catalog price %d", *req.DeclaredPrice, req.FullDomain, ext.Price))

			// the flag may have suspended the account
			eligible, err := s.users.IsEligible(ctx, req.Username)
			if err != nil {
				return nil, err
			}
			if !eligible {
				return nil, ErrAccountNotEligible
			}
		}
	case req.DeclaredPrice != nil:
		price = *req.DeclaredPrice
	}

	if price > 0 && !s.admin.Is(req.Username) {
		payment := models.Payment{
			ID:          newID(),
			Username:    req.Username,
			Domain:      req.FullDomain,
			Price:       price,
			Nameservers: nameservers,
			Status:      models.PaymentPending,
			CreatedAt:   s.now(),
		}
		if err := appendPayment(ctx, s.store, payment); err != nil {
			return nil, err
		}

		s.monitor.OnAction(ctx, req.Username, ActionDomainRequest,
			fmt.Sprintf("Domain requested: %s (payment %s pending)", req.FullDomain, payment.ID))
		return &DomainResult{Payment: &payment, PaymentRequired: true, PaymentLink: paymentLink}, nil
	}

	domain := models.Domain{
		FullName:    req.FullDomain,
		Owner:       req.Username,
		Nameservers: nameservers,
		Status:      models.DomainActive,
		CreatedAt:   s.now(),
	}
	if err := s.appendDomain(ctx, domain); err != nil {
		return nil, err
	}

	s.monitor.OnAction(ctx, req.Username, ActionDomainRequest, fmt.Sprintf("Domain requested: %s", req.FullDomain))
	s.provision(ctx, domain)
	return &DomainResult{Domain: &domain}, nil
}

// CheckAvailability reports whether fullDomain is free and what it costs
func (s *RegistryService) CheckAvailability(ctx context.Context, username, fullDomain string) (*Availability, error) {
	if !validDomainName(fullDomain) {
		return nil, ErrInvalidInput
	}

	exists, err := s.exists(ctx, fullDomain)
	if err != nil {
		return nil, err
	}

	ext, err := s.extensions.Resolve(ctx, fullDomain)
	if err != nil {
		return nil, err
	}

	result := &Availability{Domain: fullDomain, Available: !exists, Extension: ext}
	if ext != nil && !s.admin.Is(username) {
		result.Price = ext.Price
		result.PaymentLink = ext.PaymentLink
	}
	return result, nil
}

// ListMine returns the domains owned by username
func (s *RegistryService) ListMine(ctx context.Context, username string) ([]models.Domain, error) {
	domains, err := s.store.Domains(ctx)
	if err != nil {
		return nil, upstream("load domains", err)
	}

	mine := make([]models.Domain, 0)
	for _, d := range domains {
		if d.Owner == username {
			mine = append(mine, d)
		}
	}
	return mine, nil
}

// ListAll returns every registered domain
func (s *RegistryService) ListAll(ctx context.Context, adminUsername string) ([]models.Domain, error) {
	if err := s.admin.require(adminUsername); err != nil {
		return nil, err
	}

	domains, err := s.store.Domains(ctx)
	if err != nil {
		return nil, upstream("load domains", err)
	}
	if domains == nil {
		domains = []models.Domain{}
	}
	return domains, nil
}

// Delete removes a domain. An unknown name is a no-op.
func (s *RegistryService) Delete(ctx context.Context, adminUsername, fullName string) error {
	if err := s.admin.require(adminUsername); err != nil {
		return err
	}

	domains, err := s.store.Domains(ctx)
	if err != nil {
		return upstream("load domains", err)
	}

	kept := make([]models.Domain, 0, len(domains))
	for _, d := range domains {
		if d.FullName != fullName {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(domains) {
		return nil
	}

	if err := s.store.SaveDomains(ctx, kept); err != nil {
		return upstream("save domains", err)
	}

	s.monitor.OnAction(ctx, adminUsername, ActionDomainDelete, fmt.Sprintf("Domain deleted: %s", fullName))
	return nil
}

func (s *RegistryService) exists(ctx context.Context, fullName string) (bool, error) {
	domains, err := s.store.Domains(ctx)
	if err != nil {
		return false, upstream("load domains", err)
	}

	for _, d := range domains {
		if d.FullName == fullName {
			return true, nil
		}
	}
	return false, nil
}

func (s *RegistryService) appendDomain(ctx context.Context, domain models.Domain) error {
	domains, err := s.store.Domains(ctx)
	if err != nil {
		return upstream("load domains", err)
	}

	domains = append(domains, domain)
	if err := s.store.SaveDomains(ctx, domains); err != nil {
		return upstream("save domains", err)
	}
	return nil
}

// provision publishes NS records. The domain stays registered when it fails,
// and a caller going away does not cut it short.
func (s *RegistryService) provision(ctx context.Context, domain models.Domain) {
	if s.dns == nil {
		return
	}
	if err := s.dns.Provision(context.WithoutCancel(ctx), domain.FullName, domain.Nameservers); err != nil {
		log.Printf("DNS provisioning incomplete for %s: %v", domain.FullName, err)
	}
}

func validDomainName(name string) bool {
	return name != "" && strings.Contains(name, ".") && !strings.ContainsAny(name, " \t\r\n/")
}

// normalizeNameservers trims entries, drops blanks and keeps the order
func normalizeNameservers(nameservers []string) ([]string, error) {
	out := make([]string, 0, len(nameservers))
	for _, ns := range nameservers {
		if ns = strings.TrimSpace(ns); ns != "" {
			out = append(out, ns)
		}
	}
	if len(out) == 0 || len(out) > MaxNameservers {
		return nil, ErrInvalidNameservers
	}
	return out, nil
}
