package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"freedomain/internal/models"
	"freedomain/internal/store"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdmin    = "admindomain"
	testPassword = "admin-secret"
)

var kst = time.FixedZone("UTC+9", 9*60*60)

// env wires every service over one in-memory store
type env struct {
	kv         *faultyStore
	store      *store.Collections
	monitor    *SecurityMonitor
	users      *UserService
	extensions *ExtensionService
	registry   *RegistryService
	payments   *PaymentService
	dns        *recordingProvisioner
	alerts     *recordingAlerts
}

func newEnv(t *testing.T) *env {
	t.Helper()

	kv := &faultyStore{MemoryStore: store.NewMemoryStore(), failPut: map[string]bool{}}
	collections := store.NewCollections(kv)
	admin := Admin{Username: testAdmin, Password: testPassword, Email: "admin@domain.com"}
	alerts := &recordingAlerts{sent: make(chan *Alert, 200)}

	monitor := NewSecurityMonitor(collections, admin, kst, alerts)
	// 10:00 local by default
	monitor.SetClock(fixedClock(10, 0))

	users := NewUserService(collections, admin, monitor)
	users.hashCost = bcrypt.MinCost
	extensions := NewExtensionService(collections, admin, monitor)
	dns := &recordingProvisioner{}
	registry := NewRegistryService(collections, admin, users, extensions, monitor, dns)
	payments := NewPaymentService(collections, admin, registry, monitor)

	return &env{
		kv:         kv,
		store:      collections,
		monitor:    monitor,
		users:      users,
		extensions: extensions,
		registry:   registry,
		payments:   payments,
		dns:        dns,
		alerts:     alerts,
	}
}

// fixedClock returns a clock reading hour:minute in UTC+9
func fixedClock(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, hour, minute, 0, 0, kst)
	}
}

func (e *env) register(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, e.users.Register(context.Background(), username, username+"@example.com", "pw-"+username))
}

func (e *env) addExtension(t *testing.T, name string, price int, link string) {
	t.Helper()
	require.NoError(t, e.extensions.Add(context.Background(), testAdmin,
		models.Extension{Name: name, Price: price, PaymentLink: link}))
}

func (e *env) userStatus(t *testing.T, username string) models.UserStatus {
	t.Helper()
	users, err := e.store.Users(context.Background())
	require.NoError(t, err)
	for _, u := range users {
		if u.Username == username {
			return u.Status
		}
	}
	t.Fatalf("user %s not found", username)
	return ""
}

func (e *env) domains(t *testing.T) []models.Domain {
	t.Helper()
	domains, err := e.store.Domains(context.Background())
	require.NoError(t, err)
	return domains
}

func (e *env) allPayments(t *testing.T) []models.Payment {
	t.Helper()
	payments, err := e.store.Payments(context.Background())
	require.NoError(t, err)
	return payments
}

func (e *env) securityLogs(t *testing.T) []models.SecurityLog {
	t.Helper()
	logs, err := e.store.SecurityLogs(context.Background())
	require.NoError(t, err)
	return logs
}

func intPtr(v int) *int { return &v }

var errInjected = errors.New("injected failure")

// faultyStore fails Get or Put for selected keys
type faultyStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	failPut map[string]bool
	failGet string
}

func (s *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	fail := s.failGet == key
	s.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	fail := s.failPut[key]
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.MemoryStore.Put(ctx, key, value)
}

func (s *faultyStore) failPutFor(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut[key] = true
}

func (s *faultyStore) recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = map[string]bool{}
	s.failGet = ""
}

func (s *faultyStore) failGetFor(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = key
}

type provisionCall struct {
	domain      string
	nameservers []string
	ctxErr      error
}

type recordingProvisioner struct {
	mu    sync.Mutex
	calls []provisionCall
	err   error
}

func (p *recordingProvisioner) Provision(ctx context.Context, domain string, nameservers []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, provisionCall{domain: domain, nameservers: nameservers, ctxErr: ctx.Err()})
	return p.err
}

func (p *recordingProvisioner) Calls() []provisionCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provisionCall(nil), p.calls...)
}

type recordingAlerts struct {
	sent chan *Alert
}

func (a *recordingAlerts) SendAlert(alert *Alert) error {
	a.sent <- alert
	return nil
}
