package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/edulink-app/assignment-api/internal/models"
)

func rbacRequest(t *testing.T, mw gin.HandlerFunc, claims *models.JWTClaims, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) { c.Set(ContextUserKey, claims) })
	}
	r.GET("/users/:id", mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRBACRejectsAnonymous(t *testing.T) {
	rec := rbacRequest(t, RequireRoles(models.RoleAdmin), nil, "/users/u1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRBACAllowsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	rec := rbacRequest(t, RequireRoles(models.RoleAdmin), claims, "/users/u1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBACForbidsOtherRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	rec := rbacRequest(t, RequireRoles(models.RoleAdmin, models.RoleTeacher), claims, "/users/u1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACSelfMatchesPathParam(t *testing.T) {
	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	mw := RBAC(string(models.RoleAdmin), "SELF")

	rec := rbacRequest(t, mw, claims, "/users/student-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = rbacRequest(t, mw, claims, "/users/student-2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ping", JWT(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
