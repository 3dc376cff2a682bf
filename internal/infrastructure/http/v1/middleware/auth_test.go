package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "farmapos/internal/core/context"
)

type fakeValidator struct {
	operator *appctx.OperatorContext
	err      error
}

func (v *fakeValidator) ValidateToken(tokenString string) (*appctx.OperatorContext, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.operator, nil
}

func newAuthRouter(validator TokenValidator, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())

	chain := r.Group("/", Auth(validator))
	if len(roles) > 0 {
		chain.Use(RequireRole(roles...))
	}
	chain.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"operatorId": appctx.GetOperatorID(c.Request.Context()),
		})
	})
	return r
}

func doRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidToken(t *testing.T) {
	validator := &fakeValidator{operator: &appctx.OperatorContext{
		OperatorID: "op-1",
		Roles:      []string{"PHARMACIST"},
	}}
	r := newAuthRouter(validator)

	w := doRequest(r, "Bearer good-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "op-1")
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newAuthRouter(&fakeValidator{})
	w := doRequest(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestAuth_MalformedHeader(t *testing.T) {
	r := newAuthRouter(&fakeValidator{})
	w := doRequest(r, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	r := newAuthRouter(&fakeValidator{err: errors.New("expired")})
	w := doRequest(r, "Bearer stale-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole_Allowed(t *testing.T) {
	validator := &fakeValidator{operator: &appctx.OperatorContext{
		OperatorID: "op-1",
		Roles:      []string{"PHARMACIST"},
	}}
	r := newAuthRouter(validator, "PHARMACIST", "SUPERVISOR")

	w := doRequest(r, "Bearer good-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	validator := &fakeValidator{operator: &appctx.OperatorContext{
		OperatorID: "op-1",
		Roles:      []string{"CASHIER"},
	}}
	r := newAuthRouter(validator, "SUPERVISOR")

	w := doRequest(r, "Bearer good-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
}

func TestRequireRole_NoOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/ping", RequireRole("PHARMACIST"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := doRequest(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &fakeValidator{operator: &appctx.OperatorContext{OperatorID: "op-9"}}
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/ping", OptionalAuth(validator), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"operatorId": appctx.GetOperatorID(c.Request.Context()),
		})
	})

	// Without a header the request still passes, anonymously.
	w := doRequest(r, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "op-9")

	// With a valid token the operator is attached.
	w = doRequest(r, "Bearer good-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "op-9")
}
