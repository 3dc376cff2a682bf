package handlers

import (
	"github.com/gin-gonic/gin"

	"farmapos/internal/domain/auth"
)

// AuthHandler handles token issuance for POS terminals.
type AuthHandler struct {
	*BaseHandler
	jwt *auth.JWTService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		jwt:         jwt,
	}
}

// TokenResponse carries the issued access token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Token handles POST /auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req auth.IssueRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, expiresAt, err := h.jwt.Issue(req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Unix(),
	})
}
