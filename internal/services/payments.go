package services

import (
	"context"
	"fmt"
	"log"

	"freedomain/internal/models"
	"freedomain/internal/store"
)

// PaymentService approves or rejects pending payments
type PaymentService struct {
	store    *store.Collections
	admin    Admin
	registry *RegistryService
	monitor  *SecurityMonitor
}

// NewPaymentService creates a new payment ledger
func NewPaymentService(collections *store.Collections, admin Admin, registry *RegistryService, monitor *SecurityMonitor) *PaymentService {
	return &PaymentService{
		store:    collections,
		admin:    admin,
		registry: registry,
		monitor:  monitor,
	}
}

// ListPending returns payments awaiting a decision
func (s *PaymentService) ListPending(ctx context.Context, adminUsername string) ([]models.Payment, error) {
	if err := s.admin.require(adminUsername); err != nil {
		return nil, err
	}

	payments, err := s.store.Payments(ctx)
	if err != nil {
		return nil, upstream("load payments", err)
	}

	return filterPending(payments), nil
}

// CountPending returns the number of payments awaiting a decision
func (s *PaymentService) CountPending(ctx context.Context) (int, error) {
	payments, err := s.store.Payments(ctx)
	if err != nil {
		return 0, upstream("load payments", err)
	}
	return len(filterPending(payments)), nil
}

// Approve marks a pending payment approved and creates its domain.
// Unknown ids and already decided payments are silent no-ops. If the name
// was registered while the payment waited, or the domain cannot be written,
// the payment stays pending.
func (s *PaymentService) Approve(ctx context.Context, adminUsername, paymentID string) error {
	if err := s.admin.require(adminUsername); err != nil {
		return err
	}

	payments, err := s.store.Payments(ctx)
	if err != nil {
		return upstream("load payments", err)
	}

	i := findPayment(payments, paymentID)
	if i < 0 || payments[i].Terminal() {
		return nil
	}
	payment := payments[i]

	exists, err := s.registry.exists(ctx, payment.Domain)
	if err != nil {
		return err
	}
	if exists {
		return ErrDomainAlreadyExists
	}

	payments[i].Status = models.PaymentApproved
	if err := s.store.SavePayments(ctx, payments); err != nil {
		return upstream("save payments", err)
	}

	domain := models.Domain{
		FullName:    payment.Domain,
		Owner:       payment.Username,
		Nameservers: payment.Nameservers,
		Status:      models.DomainActive,
		CreatedAt:   s.registry.now(),
	}
	if err := s.registry.appendDomain(ctx, domain); err != nil {
		s.revertToPending(ctx, paymentID)
		return err
	}

	s.monitor.OnAction(ctx, adminUsername, ActionPaymentApprove,
		fmt.Sprintf("Payment %s approved: %s", paymentID, payment.Domain))
	s.registry.provision(ctx, domain)
	return nil
}

// Reject marks a pending payment rejected. The payment is kept for the
// record and no domain is created. Unknown ids and already decided payments
// are silent no-ops.
func (s *PaymentService) Reject(ctx context.Context, adminUsername, paymentID string) error {
	if err := s.admin.require(adminUsername); err != nil {
		return err
	}

	payments, err := s.store.Payments(ctx)
	if err != nil {
		return upstream("load payments", err)
	}

	i := findPayment(payments, paymentID)
	if i < 0 || payments[i].Terminal() {
		return nil
	}

	payments[i].Status = models.PaymentRejected
	if err := s.store.SavePayments(ctx, payments); err != nil {
		return upstream("save payments", err)
	}

	s.monitor.OnAction(ctx, adminUsername, ActionPaymentReject,
		fmt.Sprintf("Payment %s rejected: %s", paymentID, payments[i].Domain))
	return nil
}

// revertToPending undoes an approval whose domain was never written
func (s *PaymentService) revertToPending(ctx context.Context, paymentID string) {
	payments, err := s.store.Payments(ctx)
	if err == nil {
		if i := findPayment(payments, paymentID); i >= 0 {
			payments[i].Status = models.PaymentPending
			err = s.store.SavePayments(ctx, payments)
		}
	}
	if err != nil {
		log.Printf("Failed to revert payment %s to pending: %v", paymentID, err)
	}
}

// appendPayment adds a payment to the ledger
func appendPayment(ctx context.Context, collections *store.Collections, payment models.Payment) error {
	payments, err := collections.Payments(ctx)
	if err != nil {
		return upstream("load payments", err)
	}

	payments = append(payments, payment)
	if err := collections.SavePayments(ctx, payments); err != nil {
		return upstream("save payments", err)
	}
	return nil
}

func findPayment(payments []models.Payment, id string) int {
	for i, p := range payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func filterPending(payments []models.Payment) []models.Payment {
	pending := make([]models.Payment, 0)
	for _, p := range payments {
		if p.Status == models.PaymentPending {
			pending = append(pending, p)
		}
	}
	return pending
}
