package handlers

import (
	"net/http"
	"time"

	"github.com/evault/evault/internal/accounts"
	"github.com/evault/evault/internal/apperr"
	"github.com/evault/evault/internal/sessions"
	"github.com/evault/evault/internal/tokens"
	"github.com/evault/evault/pkg/logger"
	"github.com/evault/evault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	accounts *accounts.Service
	tokens   *tokens.Manager
	revoked  sessions.Store
	log      *logger.Logger
}

func NewAuthHandler(a *accounts.Service, t *tokens.Manager, revoked sessions.Store) *AuthHandler {
	return &AuthHandler{accounts: a, tokens: t, revoked: revoked, log: logger.Named("http.auth")}
}

// Register routes under /api/auth. requireAuth guards logout and me.
func (h *AuthHandler) Register(rg gin.IRouter, requireAuth gin.HandlerFunc) {
	a := rg.Group("/api/auth")
	a.POST("/register", h.SignUp)
	a.POST("/verify-email", h.VerifyEmail)
	a.POST("/login", h.Login)
	a.POST("/resend-verification", h.ResendVerification)
	a.POST("/logout", requireAuth, h.Logout)
	a.GET("/me", requireAuth, h.Me)
}

func (h *AuthHandler) fail(c *gin.Context, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err, fallback)})
}

func (h *AuthHandler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// SignUp creates an unverified account and mails its verification code.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req accounts.RegisterInput
	if !h.bind(c, &req) {
		return
	}
	if _, err := h.accounts.Register(c.Request.Context(), req); err != nil {
		h.fail(c, err, "Registration failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful. Please check your email for verification code."})
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !h.bind(c, &req) {
		return
	}
	if _, err := h.accounts.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		h.fail(c, err, "Verification failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

// Login checks credentials and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, &req) {
		return
	}
	a, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err, "Login failed")
		return
	}
	token, claims, err := h.tokens.GenerateAccessToken(a.ID, a.Username)
	if err != nil {
		h.fail(c, err, "Login failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"userId":    a.ID,
		"username":  a.Username,
		"email":     a.Email,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.bind(c, &req) {
		return
	}
	if err := h.accounts.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err, "Error resending verification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Verification code resent"})
}

// Logout revokes the presented token until it would have expired anyway.
func (h *AuthHandler) Logout(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	until := id.ExpiresAt
	if until.IsZero() {
		until = time.Now().Add(tokens.DefaultTTL)
	}
	if err := h.revoked.Revoke(c.Request.Context(), id.TokenID, until); err != nil {
		h.fail(c, err, "failed to revoke token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the account behind the presented token.
func (h *AuthHandler) Me(c *gin.Context) {
	a, err := h.accounts.GetByID(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "user lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": a})
}
