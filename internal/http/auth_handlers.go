package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"music-locker/internal/auth"
	"music-locker/internal/domain"
	"music-locker/internal/service"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
}

type profileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email and password are required"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Errorf("register user: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		h.logger.Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handler) profile(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profileResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user *domain.User) {
	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Errorf("issue token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(status, tokenResponse{
		Token:     token,
		Username:  user.Username,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

// authenticate resolves the caller or writes the error response. Handlers
// return immediately when ok is false.
func (h *Handler) authenticate(c *gin.Context) (*domain.User, bool) {
	user, err := h.guard.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
	if err == nil {
		return user, true
	}
	if auth.IsAuthError(err) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": authMessage(err)})
		return nil, false
	}
	h.logger.Errorf("authenticate: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
	return nil, false
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "token is missing"
	case errors.Is(err, auth.ErrExpiredToken):
		return "token has expired"
	case errors.Is(err, auth.ErrUnknownUser):
		return "user not found"
	case errors.Is(err, auth.ErrMalformedToken):
		return "token is malformed"
	default:
		return "token is invalid"
	}
}
