package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/queue"
	"github.com/your-org/faceclock/internal/storage"
	"github.com/your-org/faceclock/pkg/dto"
)

type CameraHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewCameraHandler(db *storage.PostgresStore, producer *queue.Producer) *CameraHandler {
	return &CameraHandler{db: db, producer: producer}
}

func (h *CameraHandler) Create(c *gin.Context) {
	var req dto.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	camType := models.CameraType(req.CameraType)
	if camType != models.CameraTypeRTSP && camType != models.CameraTypeHTTP {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera_type must be rtsp or http"})
		return
	}

	action := models.Action(req.Action)
	switch action {
	case "", models.ActionAuto:
		action = models.ActionAuto
	case models.ActionCheckIn, models.ActionCheckOut:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be check_in, check_out or auto"})
		return
	}

	fps := req.FPS
	if fps <= 0 {
		fps = 15
	}

	cam := &models.Camera{
		Name:       req.Name,
		URL:        req.URL,
		CameraType: camType,
		Location:   req.Location,
		FPS:        fps,
		Action:     action,
	}

	if err := h.db.CreateCamera(c.Request.Context(), cam); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, cameraToResponse(cam))
}

func (h *CameraHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	c.JSON(http.StatusOK, cameraToResponse(cam))
}

func (h *CameraHandler) List(c *gin.Context) {
	cameras, err := h.db.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CameraResponse, 0, len(cameras))
	for _, cam := range cameras {
		resp = append(resp, cameraToResponse(&cam))
	}

	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: resp, Total: len(resp)})
}

func (h *CameraHandler) Start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	if cam.Status == models.CameraStatusRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "camera already running"})
		return
	}

	cmd := map[string]interface{}{
		"action":    "start",
		"camera_id": id.String(),
		"url":       cam.URL,
		"type":      string(cam.CameraType),
		"fps":       cam.FPS,
	}

	cmdData, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(cmdData); err != nil {
		_ = h.db.UpdateCameraStatus(c.Request.Context(), id, models.CameraStatusError, "failed to publish start command")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send start command"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "starting", "camera_id": id})
}

func (h *CameraHandler) Stop(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	cmd := map[string]interface{}{
		"action":    "stop",
		"camera_id": id.String(),
	}
	cmdData, _ := json.Marshal(cmd)
	_ = h.producer.PublishControl(cmdData)

	if err := h.db.UpdateCameraStatus(c.Request.Context(), id, models.CameraStatusStopped, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped", "camera_id": id})
}

func (h *CameraHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	// Stop the camera first if it is running
	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam != nil && cam.Status == models.CameraStatusRunning {
		cmd := map[string]interface{}{
			"action":    "stop",
			"camera_id": id.String(),
		}
		cmdData, _ := json.Marshal(cmd)
		_ = h.producer.PublishControl(cmdData)
	}

	if err := h.db.DeleteCamera(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func cameraToResponse(cam *models.Camera) dto.CameraResponse {
	return dto.CameraResponse{
		ID:           cam.ID,
		Name:         cam.Name,
		URL:          cam.URL,
		CameraType:   string(cam.CameraType),
		Location:     cam.Location,
		FPS:          cam.FPS,
		Action:       string(cam.Action),
		Status:       string(cam.Status),
		ErrorMessage: cam.ErrorMessage,
		CreatedAt:    cam.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    cam.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
