// cmd/access-service/api.go
package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lead-access-service/internal/access"
	"lead-access-service/internal/common/database"
	errs "lead-access-service/internal/common/errors"
	"lead-access-service/internal/common/logger"
	"lead-access-service/internal/common/observability"
	"lead-access-service/internal/credits"
	"lead-access-service/internal/unlock"
)

// api is the thin JSON binding over the core packages. It validates
// shapes and maps error codes to statuses; every rule lives below it.
type api struct {
	svc    *unlock.Service
	engine *credits.Engine
	pg     *database.PostgresClient
	obs    *observability.Observability
	logger logger.Logger
}

func newAPI(svc *unlock.Service, engine *credits.Engine, pg *database.PostgresClient, obs *observability.Observability, log logger.Logger) *api {
	return &api{
		svc:    svc,
		engine: engine,
		pg:     pg,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func (a *api) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.instrument())

	v1 := r.Group("/v1")
	v1.POST("/unlock", a.handleUnlock)
	v1.GET("/credits/balance", a.handleBalance)
	v1.POST("/plans/purchase", a.handlePurchase)

	r.GET("/healthz", a.handleHealth)
	return r
}

// instrument records one operation count and duration per request,
// keyed by the matched route.
func (a *api) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		op := c.FullPath()
		if op == "" {
			op = "unmatched"
		}
		status := "success"
		if c.Writer.Status() >= 400 {
			status = "error"
		}
		a.obs.RecordOperation(c.Request.Context(), op, status)
		a.obs.RecordDuration(c.Request.Context(), op, time.Since(start))
	}
}

type unlockRequest struct {
	UserID     string  `json:"userId"`
	RecordIDs  []int64 `json:"recordIds"`
	AccessType string  `json:"accessType"`
}

func (a *api) handleUnlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if req.UserID == "" || len(req.RecordIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and recordIds are required"})
		return
	}

	level, err := access.ParseLevel(req.AccessType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.svc.Unlock(c.Request.Context(), req.UserID, req.RecordIDs, level)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) handleBalance(c *gin.Context) {
	userID := c.Query("userId")
	email := c.Query("email")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	acc, err := a.engine.Balance(c.Request.Context(), userID, email)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

type purchaseRequest struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan"`
	Amount int64  `json:"amount"` // CUSTOM only: currency units, 100 credits each
}

func (a *api) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if req.UserID == "" || req.Plan == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and plan are required"})
		return
	}

	if credits.Plan(req.Plan) == credits.PlanCustom {
		if req.Amount <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive for CUSTOM"})
			return
		}
		balance, err := a.engine.AddCredits(c.Request.Context(), req.UserID, req.Amount*100)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"userId":  req.UserID,
			"plan":    credits.PlanCustom,
			"credits": balance,
		})
		return
	}

	acc, err := a.engine.Purchase(c.Request.Context(), credits.PlanPurchase{
		UserID: req.UserID,
		Plan:   credits.Plan(req.Plan),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (a *api) handleHealth(c *gin.Context) {
	if err := a.pg.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps structured error codes to HTTP statuses. Unknown
// errors are logged and surfaced as 500s without their details.
func (a *api) writeError(c *gin.Context, err error) {
	var se *errs.StandardError
	if errors.As(err, &se) {
		status := http.StatusInternalServerError
		switch se.Code {
		case errs.ErrCodeInsufficientCredits:
			status = http.StatusPaymentRequired
		case errs.ErrCodeInvalidUnlockType, errs.ErrCodeInvalidPlan:
			status = http.StatusBadRequest
		case errs.ErrCodeAccountNotFound:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"code":      se.Code,
			"message":   se.Message,
			"retryable": se.Retryable,
		})
		return
	}

	a.logger.Error("unhandled error", map[string]interface{}{"error": err.Error()})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
