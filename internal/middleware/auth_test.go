package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/user/peninemate/internal/utils"
)

func adminRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AdminAuth(token), func(c *gin.Context) {
		utils.Success(c, gin.H{"ok": true})
	})
	return r
}

func doRequest(t *testing.T, r *gin.Engine, header, value string) (int, utils.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp utils.Response
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestAdminAuthNoTokenConfigured(t *testing.T) {
	r := adminRouter("")

	code, resp := doRequest(t, r, "X-Admin-Token", "anything")
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "管理接口未启用", resp.Message)
}

func TestAdminAuthWrongToken(t *testing.T) {
	r := adminRouter("secret")

	code, resp := doRequest(t, r, "X-Admin-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "令牌无效", resp.Message)
}

func TestAdminAuthHeaderToken(t *testing.T) {
	r := adminRouter("secret")

	code, resp := doRequest(t, r, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestAdminAuthBearerToken(t *testing.T) {
	r := adminRouter("secret")

	code, resp := doRequest(t, r, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}
