package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"freedomain/internal/models"
	"freedomain/internal/store"

	"github.com/google/uuid"
)

// Action types reported to the security monitor
const (
	ActionRegister        = "register"
	ActionLogin           = "login"
	ActionLoginFailed     = "login_failed"
	ActionDomainRequest   = "domain_request"
	ActionDomainDelete    = "domain_delete"
	ActionPaymentApprove  = "payment_approve"
	ActionPaymentReject   = "payment_reject"
	ActionExtensionAdd    = "extension_add"
	ActionExtensionDelete = "extension_delete"
	ActionUserSuspend     = "user_suspend"
	ActionUserUnsuspend   = "user_unsuspend"
	ActionUserBlacklist   = "user_blacklist"
	ActionScheduleUpdate  = "schedule_update"

	ActionMultipleRequests    = "multiple_requests"
	ActionPaymentManipulation = "payment_manipulation"
	ActionServerAccess        = "server_access"
)

// MaxSecurityLogs is how many flagged entries are kept
const MaxSecurityLogs = 100

// MaxAuditLogs is how many action history entries are kept
const MaxAuditLogs = 100

var suspiciousActions = map[string]bool{
	ActionMultipleRequests:    true,
	ActionPaymentManipulation: true,
	ActionServerAccess:        true,
}

// IsSuspicious reports whether actionType is an abuse signal
func IsSuspicious(actionType string) bool {
	return suspiciousActions[actionType]
}

// AlertSender delivers security alerts
type AlertSender interface {
	SendAlert(alert *Alert) error
}

// SecurityMonitor flags suspicious actions inside the daily window and
// suspends the acting user
type SecurityMonitor struct {
	store    *store.Collections
	admin    Admin
	location *time.Location
	alerts   AlertSender
	now      func() time.Time
}

// NewSecurityMonitor creates a monitor evaluating the window in location.
// alerts may be nil.
func NewSecurityMonitor(collections *store.Collections, admin Admin, location *time.Location, alerts AlertSender) *SecurityMonitor {
	return &SecurityMonitor{
		store:    collections,
		admin:    admin,
		location: location,
		alerts:   alerts,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (m *SecurityMonitor) SetClock(now func() time.Time) {
	m.now = now
}

// OnAction records an action. It never fails: errors are logged and dropped
// so the operation that triggered it is unaffected.
func (m *SecurityMonitor) OnAction(ctx context.Context, username, actionType, description string) {
	log.Printf("[SECURITY] %s by %q: %s", actionType, username, description)

	if err := m.audit(ctx, username, actionType, description); err != nil {
		log.Printf("Audit log write failed for %s by %q: %v", actionType, username, err)
	}

	flagged, err := m.detect(ctx, username, actionType)
	if err != nil {
		log.Printf("Security monitor failed for %s by %q: %v", actionType, username, err)
		return
	}
	if flagged {
		log.Printf("[SECURITY] Suspicious activity %s by %q, account suspended", actionType, username)
	}
}

func (m *SecurityMonitor) detect(ctx context.Context, username, actionType string) (bool, error) {
	schedule, err := m.store.Schedule(ctx)
	if err != nil {
		return false, err
	}
	if !schedule.Enabled || !IsSuspicious(actionType) {
		return false, nil
	}

	start, err := ParseClock(schedule.WindowStart)
	if err != nil {
		return false, fmt.Errorf("invalid window start: %w", err)
	}
	end, err := ParseClock(schedule.WindowEnd)
	if err != nil {
		return false, fmt.Errorf("invalid window end: %w", err)
	}

	now := m.now()
	if !InWindow(MinuteOfDay(now.In(m.location)), start, end) {
		return false, nil
	}

	entry := models.SecurityLog{
		ID:          newID(),
		Username:    username,
		ActionType:  actionType,
		Description: fmt.Sprintf("Suspicious activity detected: %s", actionType),
		Timestamp:   now,
	}
	if err := m.appendLog(ctx, entry); err != nil {
		return false, err
	}
	if err := m.suspend(ctx, username); err != nil {
		return true, err
	}

	m.sendAlert(entry)
	return true, nil
}

// audit records every action in the capped history, flagged or not
func (m *SecurityMonitor) audit(ctx context.Context, username, actionType, description string) error {
	logs, err := m.store.AuditLogs(ctx)
	if err != nil {
		return err
	}

	entry := models.SecurityLog{
		ID:          newID(),
		Username:    username,
		ActionType:  actionType,
		Description: description,
		Timestamp:   m.now(),
	}
	return m.store.SaveAuditLogs(ctx, prependCapped(logs, entry, MaxAuditLogs))
}

func (m *SecurityMonitor) appendLog(ctx context.Context, entry models.SecurityLog) error {
	logs, err := m.store.SecurityLogs(ctx)
	if err != nil {
		return err
	}
	return m.store.SaveSecurityLogs(ctx, PrependSecurityLog(logs, entry))
}

func (m *SecurityMonitor) suspend(ctx context.Context, username string) error {
	users, err := m.store.Users(ctx)
	if err != nil {
		return err
	}

	for i := range users {
		if users[i].Username == username {
			users[i].Status = models.UserSuspended
			return m.store.SaveUsers(ctx, users)
		}
	}
	return nil
}

func (m *SecurityMonitor) sendAlert(entry models.SecurityLog) {
	if m.alerts == nil {
		return
	}

	alert := &Alert{
		Subject: fmt.Sprintf("Security alert: %s by %s", entry.ActionType, entry.Username),
		Message: fmt.Sprintf("%s\nUser: %s\nAccount suspended automatically.", entry.Description, entry.Username),
		Fields: map[string]interface{}{
			"event":    "security_alert",
			"username": entry.Username,
			"action":   entry.ActionType,
		},
		Time: entry.Timestamp,
	}

	go func() {
		if err := m.alerts.SendAlert(alert); err != nil {
			log.Printf("Failed to send security alert: %v", err)
		}
	}()
}

// Schedule returns the current detection window
func (m *SecurityMonitor) Schedule(ctx context.Context, adminUsername string) (models.SecuritySchedule, error) {
	if err := m.admin.require(adminUsername); err != nil {
		return models.SecuritySchedule{}, err
	}

	schedule, err := m.store.Schedule(ctx)
	if err != nil {
		return models.SecuritySchedule{}, upstream("load schedule", err)
	}
	return schedule, nil
}

// UpdateSchedule replaces the detection window. A start later than the end
// is accepted but never matches: the window does not wrap past midnight.
func (m *SecurityMonitor) UpdateSchedule(ctx context.Context, adminUsername string, schedule models.SecuritySchedule) error {
	if err := m.admin.require(adminUsername); err != nil {
		return err
	}
	if _, err := ParseClock(schedule.WindowStart); err != nil {
		return ErrInvalidSchedule
	}
	if _, err := ParseClock(schedule.WindowEnd); err != nil {
		return ErrInvalidSchedule
	}

	if err := m.store.SaveSchedule(ctx, schedule); err != nil {
		return upstream("save schedule", err)
	}

	m.OnAction(ctx, adminUsername, ActionScheduleUpdate,
		fmt.Sprintf("Security window %s-%s enabled=%t", schedule.WindowStart, schedule.WindowEnd, schedule.Enabled))
	return nil
}

// Logs returns flagged entries, newest first
func (m *SecurityMonitor) Logs(ctx context.Context, adminUsername string) ([]models.SecurityLog, error) {
	if err := m.admin.require(adminUsername); err != nil {
		return nil, err
	}

	logs, err := m.store.SecurityLogs(ctx)
	if err != nil {
		return nil, upstream("load security logs", err)
	}
	if logs == nil {
		logs = []models.SecurityLog{}
	}
	return logs, nil
}

// AuditLogs returns the history of every action, newest first
func (m *SecurityMonitor) AuditLogs(ctx context.Context, adminUsername string) ([]models.SecurityLog, error) {
	if err := m.admin.require(adminUsername); err != nil {
		return nil, err
	}

	logs, err := m.store.AuditLogs(ctx)
	if err != nil {
		return nil, upstream("load audit logs", err)
	}
	if logs == nil {
		logs = []models.SecurityLog{}
	}
	return logs, nil
}

// ClearLog dismisses a flagged entry. Unknown ids are ignored.
func (m *SecurityMonitor) ClearLog(ctx context.Context, adminUsername, id string) error {
	if err := m.admin.require(adminUsername); err != nil {
		return err
	}

	logs, err := m.store.SecurityLogs(ctx)
	if err != nil {
		return upstream("load security logs", err)
	}

	kept := logs[:0]
	for _, entry := range logs {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(logs) {
		return nil
	}

	if err := m.store.SaveSecurityLogs(ctx, kept); err != nil {
		return upstream("save security logs", err)
	}
	return nil
}

// PrependSecurityLog puts entry first and drops the oldest entries past
// MaxSecurityLogs
func PrependSecurityLog(logs []models.SecurityLog, entry models.SecurityLog) []models.SecurityLog {
	return prependCapped(logs, entry, MaxSecurityLogs)
}

func prependCapped(logs []models.SecurityLog, entry models.SecurityLog, limit int) []models.SecurityLog {
	out := make([]models.SecurityLog, 0, len(logs)+1)
	out = append(out, entry)
	out = append(out, logs...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// InWindow reports whether start <= current <= end, all in minutes of the
// day. Windows crossing midnight (start > end) never match.
func InWindow(current, start, end int) bool {
	return start <= current && current <= end
}

// MinuteOfDay returns the minutes elapsed since midnight of t's wall clock
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseClock parses a zero-padded 24-hour "HH:MM" into minutes of the day
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q", s)
	}

	digits := [4]int{}
	for i, pos := range []int{0, 1, 3, 4} {
		c := s[pos]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		digits[i] = int(c - '0')
	}

	hour := digits[0]*10 + digits[1]
	minute := digits[2]*10 + digits[3]
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return hour*60 + minute, nil
}

// newID returns a time-ordered unique id
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
