// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/services"
	"github.com/satmarket/satmarket-backend/internal/utils"
	"github.com/satmarket/satmarket-backend/internal/wallet"
)

// writeServiceError maps service-layer sentinels onto HTTP responses so every
// handler reports the same status for the same failure.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.NotFoundResponse(c, "resource")
	case errors.Is(err, services.ErrNotAuthorized):
		utils.ForbiddenResponse(c, "")
	case errors.Is(err, services.ErrDisputeAlreadyOpen):
		utils.ConflictResponse(c, "An open dispute already exists for this order")
	case errors.Is(err, services.ErrEscrowFrozen):
		utils.ConflictResponse(c, "Escrow is frozen by an open dispute")
	case errors.Is(err, services.ErrEscrowNotReleasable):
		utils.ConflictResponse(c, "Escrow is not in a releasable state")
	case errors.Is(err, services.ErrProductUnavailable):
		utils.ConflictResponse(c, "Product is not available for purchase")
	case errors.Is(err, models.ErrInvalidTransition):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, models.ErrInvalidAmount):
		utils.BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, wallet.ErrNotConfigured):
		// Operator has not set an xpub yet; checkout cannot allocate addresses.
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "PAYMENTS_UNAVAILABLE",
			"Payments are not available yet", nil)
	default:
		utils.InternalErrorResponse(c, err.Error())
	}
}
