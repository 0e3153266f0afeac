// internal/handlers/dispute.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/services"
	"github.com/satmarket/satmarket-backend/internal/utils"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
	storageService *services.StorageService
}

func NewDisputeHandler(disputeService *services.DisputeService, storageService *services.StorageService) *DisputeHandler {
	return &DisputeHandler{
		disputeService: disputeService,
		storageService: storageService,
	}
}

// POST /orders/:id/disputes
func (h *DisputeHandler) OpenDispute(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	var req services.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	dispute, err := h.disputeService.Open(orderID, userID, &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, dispute)
}

// GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userType, _ := utils.GetUserTypeFromContext(c)

	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid dispute ID", nil)
		return
	}

	dispute, err := h.disputeService.Get(disputeID, userID, models.UserType(userType))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

// POST /disputes/:id/messages
//
// Accepts multipart form data: a "body" field plus up to five "evidence"
// files stored in S3 and recorded as attachment keys on the message.
func (h *DisputeHandler) AddMessage(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userType, _ := utils.GetUserTypeFromContext(c)

	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid dispute ID", nil)
		return
	}

	body := c.PostForm("body")
	if body == "" {
		utils.BadRequestResponse(c, "Message body is required", nil)
		return
	}

	var attachments []string
	form, err := c.MultipartForm()
	if err == nil && form != nil {
		files := form.File["evidence"]
		if len(files) > 5 {
			utils.BadRequestResponse(c, "At most 5 evidence files per message", nil)
			return
		}
		for _, header := range files {
			file, err := header.Open()
			if err != nil {
				utils.BadRequestResponse(c, "Failed to read evidence file", err.Error())
				return
			}
			upload, err := h.storageService.UploadEvidence(disputeID, file, header)
			file.Close()
			if err != nil {
				utils.BadRequestResponse(c, err.Error(), nil)
				return
			}
			attachments = append(attachments, upload.Key)
		}
	}

	message, err := h.disputeService.AddMessage(disputeID, userID, models.UserType(userType), body, attachments)
	if err != nil {
		for _, key := range attachments {
			h.storageService.DeleteEvidence(key)
		}
		writeServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, message)
}

// GET /disputes/:id/evidence/*key
func (h *DisputeHandler) GetEvidenceURL(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userType, _ := utils.GetUserTypeFromContext(c)

	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid dispute ID", nil)
		return
	}

	// Visibility check piggybacks on Get.
	if _, err := h.disputeService.Get(disputeID, userID, models.UserType(userType)); err != nil {
		writeServiceError(c, err)
		return
	}

	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	url, err := h.storageService.EvidenceURL(key)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url})
}

// POST /disputes/:id/escalate
func (h *DisputeHandler) EscalateDispute(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userType, _ := utils.GetUserTypeFromContext(c)

	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid dispute ID", nil)
		return
	}

	dispute, err := h.disputeService.Escalate(disputeID, userID, models.UserType(userType))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

type updateDisputeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// PUT /admin/disputes/:id/status
func (h *DisputeHandler) UpdateDisputeStatus(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid dispute ID", nil)
		return
	}

	var req updateDisputeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	dispute, err := h.disputeService.Transition(disputeID, userID, models.DisputeStatus(req.Status))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

// PUT /admin/disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	disputeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid dispute ID", nil)
		return
	}

	var req services.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	dispute, err := h.disputeService.Resolve(disputeID, userID, &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}
