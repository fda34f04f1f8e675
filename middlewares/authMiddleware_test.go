package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldops_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync", AuthMiddleware(secret), RequireRoles([]string{"admin", "Manager"}), func(c *gin.Context) {
		id, _ := utils.GetUserIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": id})
	})
	return r
}

func call(t *testing.T, r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()
	manager, err := utils.JwtGenerate(secret, 7, "manager")
	require.NoError(t, err)
	crew, err := utils.JwtGenerate(secret, 8, "crew")
	require.NoError(t, err)
	foreign, err := utils.JwtGenerate([]byte("other"), 9, "admin")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"token header", "token", manager, http.StatusOK},
		{"bearer header", "Authorization", "Bearer " + manager, http.StatusOK},
		{"missing token", "", "", http.StatusUnauthorized},
		{"wrong signature", "token", foreign, http.StatusUnauthorized},
		{"role not allowed", "token", crew, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(t, r, tc.header, tc.value)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	w := call(t, r, "token", manager)
	assert.JSONEq(t, `{"user":7}`, w.Body.String())
}
