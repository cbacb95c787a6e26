package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type mockBridgeRegistryChecker struct{ healthy bool }

func (m *mockBridgeRegistryChecker) Check(ctx context.Context, addr string) bool { return m.healthy }

func TestAboutHealth_InitializingReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, "")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/about/health", nil)

	handler.AboutHealth(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAboutHealth_ReadyWithNoChecksReturns200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, "")
	handler.SetLifecycle(LifecycleReady)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/about/health", nil)

	handler.AboutHealth(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestAboutHealth_BridgeRegistryUnhealthyReturns5xx(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, "bridge-registry:9090")
	handler.SetLifecycle(LifecycleReady)
	handler.bridgeChecker = &mockBridgeRegistryChecker{healthy: false}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/about/health", nil)

	handler.AboutHealth(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAboutHealth_BridgeRegistryHealthyReturns200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, "bridge-registry:9090")
	handler.SetLifecycle(LifecycleReady)
	handler.bridgeChecker = &mockBridgeRegistryChecker{healthy: true}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/about/health", nil)

	handler.AboutHealth(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAboutHealth_ShuttingDownReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, "")
	handler.SetLifecycle(LifecycleReady)
	handler.SetLifecycle(LifecycleShuttingDown)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/about/health", nil)

	handler.AboutHealth(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
