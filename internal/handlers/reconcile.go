// internal/handlers/reconcile.go
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/services"
	"github.com/satmarket/satmarket-backend/internal/utils"
)

// ReconcileHandler exposes the reconciliation cycle to external schedulers
// (cron, ops tooling) behind a shared-secret token.
type ReconcileHandler struct {
	reconcileService *services.ReconcileService
	config           *config.Config
}

func NewReconcileHandler(reconcileService *services.ReconcileService, cfg *config.Config) *ReconcileHandler {
	return &ReconcileHandler{
		reconcileService: reconcileService,
		config:           cfg,
	}
}

// POST /internal/reconcile
//
// The shared secret is accepted as an X-Reconcile-Token header or a token
// query parameter, so plain cron + curl schedulers work without custom
// headers.
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	token := c.GetHeader("X-Reconcile-Token")
	if token == "" {
		token = c.Query("token")
	}
	expected := h.config.Reconcile.Token
	if expected == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Invalid reconcile token",
		})
		return
	}

	summary, err := h.reconcileService.Run(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, summary)
}
