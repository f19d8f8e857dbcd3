package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"freedomain/internal/config"
	"freedomain/internal/models"
	"freedomain/internal/services"
	"freedomain/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	adminName     = "admindomain"
	adminPassword = "admin-secret"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type HandlerSuite struct {
	suite.Suite
	router      *gin.Engine
	collections *store.Collections
	limit       config.RequestLimitConfig
	kv          store.KeyValueStore
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	if s.limit.PerMinute == 0 {
		s.limit = config.RequestLimitConfig{PerMinute: 600, Burst: 100}
	}
	if s.kv == nil {
		s.kv = store.NewMemoryStore()
	}
	s.router, s.collections = newRouter(s.kv, s.limit)
}

func (s *HandlerSuite) TearDownTest() {
	s.limit = config.RequestLimitConfig{}
	s.kv = nil
}

func newRouter(kv store.KeyValueStore, limit config.RequestLimitConfig) (*gin.Engine, *store.Collections) {
	collections := store.NewCollections(kv)
	admin := services.Admin{Username: adminName, Password: adminPassword}

	monitor := services.NewSecurityMonitor(collections, admin, time.UTC, nil)
	users := services.NewUserService(collections, admin, monitor)
	extensions := services.NewExtensionService(collections, admin, monitor)
	registry := services.NewRegistryService(collections, admin, users, extensions, monitor, nil)
	payments := services.NewPaymentService(collections, admin, registry, monitor)
	auth := services.NewAuthService("test-secret", time.Hour)

	r := gin.New()
	SetupRoutes(r, NewHandler(users, extensions, registry, payments, monitor, auth, limit))
	return r, collections
}

func (s *HandlerSuite) do(method, path, token string, body interface{}) (int, envelope) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *HandlerSuite) register(username string) {
	code, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "pw-" + username,
	})
	s.Require().Equal(http.StatusCreated, code, env.Message)
}

func (s *HandlerSuite) login(username, password string) string {
	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	s.Require().Equal(http.StatusOK, code, env.Message)

	var data struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	return data.Token
}

func (s *HandlerSuite) userToken(username string) string {
	s.register(username)
	return s.login(username, "pw-"+username)
}

func (s *HandlerSuite) adminToken() string {
	return s.login(adminName, adminPassword)
}

func (s *HandlerSuite) TestRegisterAndLogin() {
	s.register("alice")

	code, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "alice", "password": "x"})
	s.Equal(http.StatusConflict, code)
	s.False(env.Success)
	s.Equal(services.ErrUsernameTaken.Error(), env.Message)

	code, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong"})
	s.Equal(http.StatusUnauthorized, code)
	s.Equal(services.ErrInvalidCredentials.Error(), env.Message)

	code, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "pw-alice"})
	s.Equal(http.StatusOK, code)
	s.True(env.Success)

	var data struct {
		Token string            `json:"token"`
		User  services.Identity `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	s.NotEmpty(data.Token)
	s.Equal("alice", data.User.Username)
	s.False(data.User.IsAdmin)
}

func (s *HandlerSuite) TestInvalidBodies() {
	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice"})
	s.Equal(http.StatusBadRequest, code)
	s.False(env.Success)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "al", "password": "x"})
	s.Equal(http.StatusBadRequest, code)
}

func (s *HandlerSuite) TestAuthRequired() {
	code, env := s.do(http.MethodGet, "/api/v1/domains/mine", "", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.False(env.Success)

	code, _ = s.do(http.MethodGet, "/api/v1/domains/mine", "garbage", nil)
	s.Equal(http.StatusUnauthorized, code)
}

func (s *HandlerSuite) TestFreeDomainFlow() {
	token := s.userToken("alice")
	ctx := context.Background()
	s.Require().NoError(s.collections.SaveExtensions(ctx, []models.Extension{{Name: ".free.com"}}))

	code, env := s.do(http.MethodGet, "/api/v1/domains/check?domain=foo.free.com", token, nil)
	s.Equal(http.StatusOK, code)
	var availability services.Availability
	s.Require().NoError(json.Unmarshal(env.Data, &availability))
	s.True(availability.Available)

	code, env = s.do(http.MethodPost, "/api/v1/domains", token, gin.H{
		"domain":      "foo.free.com",
		"nameservers": []string{"ns1.host.net", "ns2.host.net"},
	})
	s.Equal(http.StatusCreated, code, env.Message)

	code, env = s.do(http.MethodPost, "/api/v1/domains", token, gin.H{
		"domain":      "foo.free.com",
		"nameservers": []string{"ns1.host.net"},
	})
	s.Equal(http.StatusConflict, code)
	s.Equal(services.ErrDomainAlreadyExists.Error(), env.Message)

	code, env = s.do(http.MethodGet, "/api/v1/domains/mine", token, nil)
	s.Equal(http.StatusOK, code)
	var domains []models.Domain
	s.Require().NoError(json.Unmarshal(env.Data, &domains))
	s.Require().Len(domains, 1)
	s.Equal("alice", domains[0].Owner)
	s.Equal(models.DomainActive, domains[0].Status)
}

func (s *HandlerSuite) TestPaidDomainApproval() {
	admin := s.adminToken()
	token := s.userToken("alice")

	code, env := s.do(http.MethodPost, "/api/v1/admin/extensions", admin, gin.H{
		"name": ".paid.net", "price": 500, "payment_link": "https://pay.example/p",
	})
	s.Require().Equal(http.StatusCreated, code, env.Message)

	code, env = s.do(http.MethodPost, "/api/v1/domains", token, gin.H{
		"domain":      "shop.paid.net",
		"nameservers": []string{"ns1.host.net"},
		"price":       500,
	})
	s.Require().Equal(http.StatusAccepted, code, env.Message)

	var result services.DomainResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	s.True(result.PaymentRequired)
	s.Equal("https://pay.example/p", result.PaymentLink)
	s.Require().NotNil(result.Payment)

	code, env = s.do(http.MethodGet, "/api/v1/admin/payments", admin, nil)
	s.Equal(http.StatusOK, code)
	var pending []models.Payment
	s.Require().NoError(json.Unmarshal(env.Data, &pending))
	s.Require().Len(pending, 1)
	s.Equal(result.Payment.ID, pending[0].ID)

	code, _ = s.do(http.MethodPost, "/api/v1/admin/payments/"+result.Payment.ID+"/approve", admin, nil)
	s.Equal(http.StatusOK, code)

	_, env = s.do(http.MethodGet, "/api/v1/domains/mine", token, nil)
	var domains []models.Domain
	s.Require().NoError(json.Unmarshal(env.Data, &domains))
	s.Require().Len(domains, 1)
	s.Equal("shop.paid.net", domains[0].FullName)

	_, env = s.do(http.MethodGet, "/api/v1/admin/payments", admin, nil)
	s.JSONEq(`[]`, string(env.Data))
}

func (s *HandlerSuite) TestRejectPayment() {
	admin := s.adminToken()
	token := s.userToken("alice")
	ctx := context.Background()
	s.Require().NoError(s.collections.SaveExtensions(ctx, []models.Extension{{Name: ".paid.net", Price: 100}}))

	_, env := s.do(http.MethodPost, "/api/v1/domains", token, gin.H{"domain": "a.paid.net", "nameservers": []string{"ns1"}})
	var result services.DomainResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))

	code, _ := s.do(http.MethodPost, "/api/v1/admin/payments/"+result.Payment.ID+"/reject", admin, nil)
	s.Equal(http.StatusOK, code)

	payments, err := s.collections.Payments(ctx)
	s.Require().NoError(err)
	s.Equal(models.PaymentRejected, payments[0].Status)
}

func (s *HandlerSuite) TestAdminRoutesRejectUsers() {
	token := s.userToken("mallory")

	code, env := s.do(http.MethodGet, "/api/v1/admin/users", token, nil)
	s.Equal(http.StatusForbidden, code)
	s.Equal(services.ErrAdminRequired.Error(), env.Message)

	// The default window covers the whole day
	logs, err := s.collections.SecurityLogs(context.Background())
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(services.ActionServerAccess, logs[0].ActionType)

	code, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "mallory", "password": "pw-mallory"})
	s.Equal(http.StatusUnauthorized, code)
	s.Equal(services.ErrAccountSuspended.Error(), env.Message)
}

func (s *HandlerSuite) TestUserAdministration() {
	admin := s.adminToken()
	s.register("alice")

	code, env := s.do(http.MethodGet, "/api/v1/admin/users", admin, nil)
	s.Equal(http.StatusOK, code)
	s.NotContains(string(env.Data), "password")
	var users []models.PublicUser
	s.Require().NoError(json.Unmarshal(env.Data, &users))
	s.Require().Len(users, 1)

	code, _ = s.do(http.MethodPut, "/api/v1/admin/users/alice/status", admin, gin.H{"status": "blacklisted"})
	s.Equal(http.StatusOK, code)

	code, _ = s.do(http.MethodPut, "/api/v1/admin/users/alice/status", admin, gin.H{"status": "deleted"})
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "pw-alice"})
	s.Equal(http.StatusUnauthorized, code)
}

func (s *HandlerSuite) TestSecuritySchedule() {
	admin := s.adminToken()

	code, env := s.do(http.MethodGet, "/api/v1/admin/security/schedule", admin, nil)
	s.Equal(http.StatusOK, code)
	s.JSONEq(`{"window_start":"00:00","window_end":"23:59","enabled":true}`, string(env.Data))

	code, _ = s.do(http.MethodPut, "/api/v1/admin/security/schedule", admin, gin.H{"window_start": "1:00", "window_end": "02:00"})
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPut, "/api/v1/admin/security/schedule", admin, gin.H{"window_start": "01:00", "window_end": "02:00", "enabled": false})
	s.Equal(http.StatusOK, code)

	schedule, err := s.collections.Schedule(context.Background())
	s.Require().NoError(err)
	s.Equal(models.SecuritySchedule{WindowStart: "01:00", WindowEnd: "02:00", Enabled: false}, schedule)
}

func (s *HandlerSuite) TestSecurityLogs() {
	admin := s.adminToken()
	s.Require().NoError(s.collections.SaveSecurityLogs(context.Background(), []models.SecurityLog{
		{ID: "log-1", Username: "mallory", ActionType: services.ActionServerAccess},
	}))

	code, env := s.do(http.MethodGet, "/api/v1/admin/security/logs", admin, nil)
	s.Equal(http.StatusOK, code)
	var logs []models.SecurityLog
	s.Require().NoError(json.Unmarshal(env.Data, &logs))
	s.Require().Len(logs, 1)

	code, _ = s.do(http.MethodDelete, "/api/v1/admin/security/logs/log-1", admin, nil)
	s.Equal(http.StatusOK, code)

	_, env = s.do(http.MethodGet, "/api/v1/admin/security/logs", admin, nil)
	s.JSONEq(`[]`, string(env.Data))
}

func (s *HandlerSuite) TestAuditLogs() {
	admin := s.adminToken()
	token := s.userToken("alice")
	s.Require().NoError(s.collections.SaveExtensions(context.Background(), []models.Extension{{Name: ".free.com"}}))

	code, env := s.do(http.MethodPost, "/api/v1/domains", token, gin.H{
		"domain":      "a.free.com",
		"nameservers": []string{"ns1.example.net", "ns2.example.net"},
	})
	s.Require().Equal(http.StatusCreated, code, env.Message)

	code, env = s.do(http.MethodGet, "/api/v1/admin/audit/logs", admin, nil)
	s.Equal(http.StatusOK, code)
	var logs []models.SecurityLog
	s.Require().NoError(json.Unmarshal(env.Data, &logs))
	s.Require().Len(logs, 3)
	s.Equal(services.ActionDomainRequest, logs[0].ActionType)
	s.Equal(services.ActionLogin, logs[1].ActionType)
	s.Equal(services.ActionRegister, logs[2].ActionType)

	code, _ = s.do(http.MethodGet, "/api/v1/admin/audit/logs", token, nil)
	s.Equal(http.StatusForbidden, code)
}

func (s *HandlerSuite) TestDomainAdministration() {
	admin := s.adminToken()
	s.Require().NoError(s.collections.SaveDomains(context.Background(), []models.Domain{
		{FullName: "a.free.com", Owner: "alice", Status: models.DomainActive},
	}))

	code, env := s.do(http.MethodGet, "/api/v1/admin/domains", admin, nil)
	s.Equal(http.StatusOK, code)
	s.Contains(string(env.Data), "a.free.com")

	code, _ = s.do(http.MethodDelete, "/api/v1/admin/domains/a.free.com", admin, nil)
	s.Equal(http.StatusOK, code)

	_, env = s.do(http.MethodGet, "/api/v1/admin/domains", admin, nil)
	s.JSONEq(`[]`, string(env.Data))
}

func (s *HandlerSuite) TestExtensionAdministration() {
	admin := s.adminToken()

	code, _ := s.do(http.MethodPost, "/api/v1/admin/extensions", admin, gin.H{"name": "free.com"})
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/v1/admin/extensions", admin, gin.H{"name": ".free.com"})
	s.Equal(http.StatusCreated, code)

	code, _ = s.do(http.MethodPost, "/api/v1/admin/extensions", admin, gin.H{"name": ".free.com"})
	s.Equal(http.StatusConflict, code)

	code, env := s.do(http.MethodGet, "/api/v1/extensions", "", nil)
	s.Equal(http.StatusOK, code)
	s.JSONEq(`[{"name":".free.com","price":0}]`, string(env.Data))

	code, _ = s.do(http.MethodDelete, "/api/v1/admin/extensions/.free.com", admin, nil)
	s.Equal(http.StatusOK, code)

	_, env = s.do(http.MethodGet, "/api/v1/extensions", "", nil)
	s.JSONEq(`[]`, string(env.Data))
}

func (s *HandlerSuite) TestRequestRateLimit() {
	s.limit = config.RequestLimitConfig{PerMinute: 1, Burst: 1}
	s.SetupTest()
	token := s.userToken("alice")

	body := gin.H{"domain": "a.free.com", "nameservers": []string{"ns1"}}
	code, env := s.do(http.MethodPost, "/api/v1/domains", token, body)
	s.Equal(http.StatusCreated, code, env.Message)

	body["domain"] = "b.free.com"
	code, env = s.do(http.MethodPost, "/api/v1/domains", token, body)
	s.Equal(http.StatusTooManyRequests, code)
	s.False(env.Success)

	logs, err := s.collections.SecurityLogs(context.Background())
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(services.ActionMultipleRequests, logs[0].ActionType)

	users, err := s.collections.Users(context.Background())
	s.Require().NoError(err)
	s.Equal(models.UserSuspended, users[0].Status)
}

func (s *HandlerSuite) TestStoreFailureIsGeneric() {
	s.kv = brokenStore{}
	s.SetupTest()

	code, env := s.do(http.MethodGet, "/api/v1/extensions", "", nil)
	s.Equal(http.StatusInternalServerError, code)
	s.False(env.Success)
	s.Equal("internal server error", env.Message)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Put(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidNameservers, http.StatusBadRequest},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{services.ErrAdminRequired, http.StatusForbidden},
		{services.ErrDomainAlreadyExists, http.StatusConflict},
		{services.ErrNotFound, http.StatusNotFound},
		{errors.Join(services.ErrUpstream, errors.New("boom")), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRequestLimiter(t *testing.T) {
	limiter := newRequestLimiter(60, 2)
	require.True(t, limiter.allow("alice"))
	require.True(t, limiter.allow("alice"))
	assert.False(t, limiter.allow("alice"))
	assert.True(t, limiter.allow("bob"))

	unlimited := newRequestLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.allow("alice"))
	}
}
