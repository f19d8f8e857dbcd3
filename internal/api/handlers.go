package api

import (
	"errors"
	"log"
	"net/http"

	"freedomain/internal/config"
	"freedomain/internal/models"
	"freedomain/internal/services"

	"github.com/gin-gonic/gin"
)

// Handler holds service dependencies
type Handler struct {
	userService      *services.UserService
	extensionService *services.ExtensionService
	registryService  *services.RegistryService
	paymentService   *services.PaymentService
	securityMonitor  *services.SecurityMonitor
	authService      *services.AuthService
	limiter          *requestLimiter
}

// NewHandler creates a new API handler
func NewHandler(
	userService *services.UserService,
	extensionService *services.ExtensionService,
	registryService *services.RegistryService,
	paymentService *services.PaymentService,
	securityMonitor *services.SecurityMonitor,
	authService *services.AuthService,
	limit config.RequestLimitConfig,
) *Handler {
	return &Handler{
		userService:      userService,
		extensionService: extensionService,
		registryService:  registryService,
		paymentService:   paymentService,
		securityMonitor:  securityMonitor,
		authService:      authService,
		limiter:          newRequestLimiter(limit.PerMinute, limit.Burst),
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handler *Handler) {
	api := r.Group("/api/v1")
	{
		// Authentication (no auth required)
		api.POST("/auth/register", handler.Register)
		api.POST("/auth/login", handler.Login)

		api.GET("/extensions", handler.ListExtensions)
	}

	authed := api.Group("", handler.RequireAuth())
	{
		authed.GET("/domains/check", handler.CheckDomain)
		authed.GET("/domains/mine", handler.ListMyDomains)
		authed.POST("/domains", handler.LimitRequests(), handler.RequestDomain)
	}

	admin := authed.Group("/admin", handler.RequireAdmin())
	{
		admin.POST("/extensions", handler.AddExtension)
		admin.DELETE("/extensions/:name", handler.DeleteExtension)

		admin.GET("/domains", handler.ListAllDomains)
		admin.DELETE("/domains/:name", handler.DeleteDomain)

		admin.GET("/payments", handler.ListPendingPayments)
		admin.POST("/payments/:id/approve", handler.ApprovePayment)
		admin.POST("/payments/:id/reject", handler.RejectPayment)

		admin.GET("/users", handler.ListUsers)
		admin.PUT("/users/:username/status", handler.SetUserStatus)

		admin.GET("/security/schedule", handler.GetSecuritySchedule)
		admin.PUT("/security/schedule", handler.UpdateSecuritySchedule)
		admin.GET("/security/logs", handler.ListSecurityLogs)
		admin.DELETE("/security/logs/:id", handler.ClearSecurityLog)
		admin.GET("/audit/logs", handler.ListAuditLogs)
	}
}

// respond writes a successful response
func respond(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// fail writes {success:false, message} with a status matching the error kind
func fail(c *gin.Context, err error) {
	status := statusFor(err)

	message := "internal server error"
	var serviceErr *services.Error
	if status != http.StatusInternalServerError && errors.As(err, &serviceErr) {
		message = serviceErr.Error()
	} else {
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUpstream):
		return http.StatusInternalServerError
	case errors.Is(err, services.ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Register creates an account
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrInvalidInput)
		return
	}

	if err := h.userService.Register(c.Request.Context(), req.Username, req.Email, req.Password); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusCreated, "Registration successful", nil)
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrInvalidInput)
		return
	}

	identity, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := h.authService.GenerateToken(identity)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Login successful", gin.H{
		"token": token,
		"user":  identity,
	})
}

// ListExtensions returns the extension catalog
func (h *Handler) ListExtensions(c *gin.Context) {
	extensions, err := h.extensionService.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", extensions)
}

// CheckDomain reports availability and price of ?domain=
func (h *Handler) CheckDomain(c *gin.Context) {
	availability, err := h.registryService.CheckAvailability(c.Request.Context(), currentUser(c), c.Query("domain"))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", availability)
}

// RequestDomain registers a domain or opens a pending payment
func (h *Handler) RequestDomain(c *gin.Context) {
	var req struct {
		Domain      string   `json:"domain"`
		Nameservers []string `json:"nameservers"`
		Price       *int     `json:"price"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrInvalidInput)
		return
	}

	result, err := h.registryService.RequestDomain(c.Request.Context(), services.DomainRequest{
		Username:      currentUser(c),
		FullDomain:    req.Domain,
		Nameservers:   req.Nameservers,
		DeclaredPrice: req.Price,
	})
	if err != nil {
		fail(c, err)
		return
	}

	if result.PaymentRequired {
		respond(c, http.StatusAccepted, "Payment required, request is pending approval", result)
		return
	}
	respond(c, http.StatusCreated, "Domain registered", result)
}

// ListMyDomains returns the caller's domains
func (h *Handler) ListMyDomains(c *gin.Context) {
	domains, err := h.registryService.ListMine(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", domains)
}

// AddExtension adds an extension to the catalog
func (h *Handler) AddExtension(c *gin.Context) {
	var ext models.Extension
	if err := c.ShouldBindJSON(&ext); err != nil {
		fail(c, services.ErrInvalidInput)
		return
	}

	if err := h.extensionService.Add(c.Request.Context(), currentUser(c), ext); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusCreated, "Extension added", ext)
}

// DeleteExtension removes an extension
func (h *Handler) DeleteExtension(c *gin.Context) {
	if err := h.extensionService.Remove(c.Request.Context(), currentUser(c), c.Param("name")); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Extension deleted", nil)
}

// ListAllDomains returns every registered domain
func (h *Handler) ListAllDomains(c *gin.Context) {
	domains, err := h.registryService.ListAll(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", domains)
}

// DeleteDomain removes a domain
func (h *Handler) DeleteDomain(c *gin.Context) {
	if err := h.registryService.Delete(c.Request.Context(), currentUser(c), c.Param("name")); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Domain deleted", nil)
}

// ListPendingPayments returns payments awaiting a decision
func (h *Handler) ListPendingPayments(c *gin.Context) {
	payments, err := h.paymentService.ListPending(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", payments)
}

// ApprovePayment approves a pending payment
func (h *Handler) ApprovePayment(c *gin.Context) {
	if err := h.paymentService.Approve(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Payment approved", nil)
}

// RejectPayment rejects a pending payment
func (h *Handler) RejectPayment(c *gin.Context) {
	if err := h.paymentService.Reject(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Payment rejected", nil)
}

// ListUsers returns every account except the admin
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", users)
}

// SetUserStatus suspends, blacklists or reactivates an account
func (h *Handler) SetUserStatus(c *gin.Context) {
	var req struct {
		Status models.UserStatus `json:"status"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, services.ErrInvalidInput)
		return
	}

	if err := h.userService.SetStatus(c.Request.Context(), currentUser(c), c.Param("username"), req.Status); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "User status updated", nil)
}

// GetSecuritySchedule returns the detection window
func (h *Handler) GetSecuritySchedule(c *gin.Context) {
	schedule, err := h.securityMonitor.Schedule(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", schedule)
}

// UpdateSecuritySchedule replaces the detection window
func (h *Handler) UpdateSecuritySchedule(c *gin.Context) {
	var schedule models.SecuritySchedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		fail(c, services.ErrInvalidInput)
		return
	}

	if err := h.securityMonitor.UpdateSchedule(c.Request.Context(), currentUser(c), schedule); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Security schedule updated", schedule)
}

// ListSecurityLogs returns flagged actions, newest first
func (h *Handler) ListSecurityLogs(c *gin.Context) {
	logs, err := h.securityMonitor.Logs(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", logs)
}

// ClearSecurityLog dismisses a flagged entry
func (h *Handler) ClearSecurityLog(c *gin.Context) {
	if err := h.securityMonitor.ClearLog(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Security log cleared", nil)
}

// ListAuditLogs returns the history of every action, newest first
func (h *Handler) ListAuditLogs(c *gin.Context) {
	logs, err := h.securityMonitor.AuditLogs(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", logs)
}
