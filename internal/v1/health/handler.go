// Package health implements the /about/health and /debug HTTP surface (6.
// EXTERNAL INTERFACES, "Health" and "Debug").
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/relaymeet/focus/internal/v1/bus"
	"github.com/relaymeet/focus/internal/v1/logging"
	"go.uber.org/zap"
)

// Lifecycle is the focus process's own coarse state, independent of any one
// conference's state, used to answer /about/health (6: "200 ... when the
// core is initialized, not in shutdown, and the last internal self-check
// succeeded; 503 if initializing or shutting down; 5xx if the self-check
// failed").
type Lifecycle int32

const (
	LifecycleInitializing Lifecycle = iota
	LifecycleReady
	LifecycleShuttingDown
)

// BridgeRegistryChecker checks gRPC connectivity to the bridge registry
// using the standard health-check protocol.
type BridgeRegistryChecker interface {
	Check(ctx context.Context, addr string) bool
}

// DefaultBridgeRegistryChecker is the production BridgeRegistryChecker.
type DefaultBridgeRegistryChecker struct{}

func (c *DefaultBridgeRegistryChecker) Check(ctx context.Context, addr string) bool {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logging.Error(ctx, "failed to dial bridge registry for health check", zap.Error(err), zap.String("addr", addr))
		return false
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		logging.Error(ctx, "bridge registry health check RPC failed", zap.Error(err))
		return false
	}
	return resp.Status == healthpb.HealthCheckResponse_SERVING
}

// Handler serves /about/health; the /debug endpoints are DebugHandler's.
type Handler struct {
	redisService       *bus.Service
	bridgeRegistryAddr string
	bridgeCheckEnabled bool
	bridgeChecker      BridgeRegistryChecker

	lifecycle atomic.Int32
}

// NewHandler constructs a Handler. bridgeRegistryAddr is BRIDGE_REGISTRY_ADDR
// (6.1); the check against it is skipped if empty.
func NewHandler(redisService *bus.Service, bridgeRegistryAddr string) *Handler {
	h := &Handler{
		redisService:       redisService,
		bridgeRegistryAddr: bridgeRegistryAddr,
		bridgeCheckEnabled: bridgeRegistryAddr != "",
		bridgeChecker:      &DefaultBridgeRegistryChecker{},
	}
	h.lifecycle.Store(int32(LifecycleInitializing))
	return h
}

// SetLifecycle transitions the process's own health state; called once
// startup completes and once shutdown begins.
func (h *Handler) SetLifecycle(l Lifecycle) {
	h.lifecycle.Store(int32(l))
}

// AboutHealth implements GET /about/health.
func (h *Handler) AboutHealth(c *gin.Context) {
	switch Lifecycle(h.lifecycle.Load()) {
	case LifecycleInitializing, LifecycleShuttingDown:
		c.Status(http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if !h.selfCheck(ctx) {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// selfCheck runs every configured dependency check; 6. requires this to back
// the 5xx branch of /about/health.
func (h *Handler) selfCheck(ctx context.Context) bool {
	if h.redisService != nil {
		if err := h.redisService.Ping(ctx); err != nil {
			logging.Error(ctx, "redis self-check failed", zap.Error(err))
			return false
		}
	}
	if h.bridgeCheckEnabled {
		if !h.bridgeChecker.Check(ctx, h.bridgeRegistryAddr) {
			return false
		}
	}
	return true
}
