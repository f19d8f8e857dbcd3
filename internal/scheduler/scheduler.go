package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"freedomain/internal/services"

	"github.com/robfig/cron/v3"
)

// PendingCounter reports how many payments await a decision
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	payments PendingCounter
	alerts   services.AlertSender
}

// NewScheduler creates a new scheduler
func NewScheduler(payments PendingCounter, alerts services.AlertSender) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		payments: payments,
		alerts:   alerts,
	}
}

// Start schedules the pending-payment digest. An empty expression leaves
// the scheduler idle.
func (s *Scheduler) Start(digestInterval string) error {
	if digestInterval == "" {
		log.Println("Scheduler disabled: no digest interval configured")
		return nil
	}

	_, err := s.cron.AddFunc(digestInterval, func() {
		if err := s.SendDigest(context.Background()); err != nil {
			log.Printf("Pending payment digest failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Scheduler started with digest interval: %s", digestInterval)
	return nil
}

// SendDigest sends the number of pending payments when there are any
func (s *Scheduler) SendDigest(ctx context.Context) error {
	count, err := s.payments.CountPending(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		log.Println("No pending payments, digest skipped")
		return nil
	}

	alert := &services.Alert{
		Subject: "Pending payments",
		Message: fmt.Sprintf("%d payment(s) are waiting for approval.", count),
		Fields: map[string]interface{}{
			"event":   "pending_payments",
			"pending": count,
		},
		Time: time.Now(),
	}

	if err := s.alerts.SendAlert(alert); err != nil {
		return err
	}
	log.Printf("Pending payment digest sent (%d pending)", count)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("Scheduler stopped")
}
