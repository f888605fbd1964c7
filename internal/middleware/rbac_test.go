package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/meditrace/meditrace-api/internal/models"
)

func rbacRouter(claims *models.JWTClaims, types ...models.OrgType) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	})
	r.POST("/guarded", RequireOrgTypes(types...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireOrgTypesAllows(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{OrganizationID: "org-m", OrgType: models.OrgTypeManufacturer}, models.OrgTypeManufacturer, models.OrgTypeDistributor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/guarded", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireOrgTypesForbidsWrongType(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{OrganizationID: "org-h", OrgType: models.OrgTypeHospital}, models.OrgTypeManufacturer)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/guarded", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireOrgTypesRejectsAnonymous(t *testing.T) {
	r := rbacRouter(nil, models.OrgTypeManufacturer)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/guarded", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
