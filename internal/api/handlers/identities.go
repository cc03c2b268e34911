package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceclock/internal/storage"
	"github.com/your-org/faceclock/pkg/dto"
)

// IndexNotifier tells recognition workers that the enrolled identity set
// changed and their in-memory index must be reloaded. Workers only reload on
// these requests.
type IndexNotifier interface {
	PublishIdentityReload() error
}

type IdentityHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	notifier IndexNotifier
	// EncodeFn extracts a face embedding from enrollment photo bytes.
	// Set after the face encoder is initialized.
	EncodeFn func(imageData []byte) ([]float32, float32, error)
	// Tolerance is the matching distance used by Identify.
	Tolerance float64

	maxEmbeddings int
}

func NewIdentityHandler(db *storage.PostgresStore, minio *storage.MinIOStore, notifier IndexNotifier, maxEmbeddings int, tolerance float64) *IdentityHandler {
	if maxEmbeddings <= 0 {
		maxEmbeddings = 5
	}
	return &IdentityHandler{
		db:            db,
		minio:         minio,
		notifier:      notifier,
		maxEmbeddings: maxEmbeddings,
		Tolerance:     tolerance,
	}
}

// notifyReload requests a worker index reload after a change to the enrolled
// set. Best effort: the API response does not depend on delivery.
func (h *IdentityHandler) notifyReload() {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.PublishIdentityReload(); err != nil {
		slog.Warn("publish identity reload", "error", err)
	}
}

func (h *IdentityHandler) Create(c *gin.Context) {
	var req dto.CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, err := h.db.CreateIdentity(c.Request.Context(), req.Name, req.EmployeeID, req.Email, req.Department)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.IdentityResponse{
		ID:         ident.ID,
		Name:       ident.Name,
		EmployeeID: ident.EmployeeID,
		Email:      ident.Email,
		Department: ident.Department,
		IsActive:   ident.IsActive,
		FaceCount:  0,
		CreatedAt:  ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *IdentityHandler) List(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	identities, err := h.db.ListIdentities(c.Request.Context(), includeInactive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, ident := range identities {
		faceCount, _ := h.db.CountEmbeddings(c.Request.Context(), ident.ID)
		resp = append(resp, dto.IdentityResponse{
			ID:         ident.ID,
			Name:       ident.Name,
			EmployeeID: ident.EmployeeID,
			Email:      ident.Email,
			Department: ident.Department,
			IsActive:   ident.IsActive,
			FaceCount:  faceCount,
			CreatedAt:  ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"identities": resp, "total": len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	ident, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	faceCount, _ := h.db.CountEmbeddings(c.Request.Context(), id)

	c.JSON(http.StatusOK, dto.IdentityResponse{
		ID:         ident.ID,
		Name:       ident.Name,
		EmployeeID: ident.EmployeeID,
		Email:      ident.Email,
		Department: ident.Department,
		IsActive:   ident.IsActive,
		FaceCount:  faceCount,
		CreatedAt:  ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *IdentityHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	var req dto.UpdateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.UpdateIdentity(c.Request.Context(), id, req.Name, req.Email, req.Department); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.notifyReload()
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Delete soft-deletes. History stays; the identity stops matching as soon as
// the workers serve the reload request.
func (h *IdentityHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	if err := h.db.DeactivateIdentity(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.notifyReload()
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// AddFace accepts a multipart enrollment photo, extracts an embedding, and
// stores it for the identity.
func (h *IdentityHandler) AddFace(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	ident, err := h.db.GetIdentity(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ident == nil || !ident.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	count, err := h.db.CountEmbeddings(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if count >= h.maxEmbeddings {
		c.JSON(http.StatusConflict, gin.H{"error": "embedding limit reached for identity"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EncodeFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face encoder not initialized"})
		return
	}

	embedding, quality, err := h.EncodeFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	// Store the source photo alongside the embedding
	sourceKey := "enrollment/" + identityID.String() + "/" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), sourceKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	fe, err := h.db.AddFaceEmbedding(c.Request.Context(), identityID, embedding, quality, sourceKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notifyReload()
	c.JSON(http.StatusCreated, dto.FaceEmbeddingResponse{
		ID:         fe.ID,
		IdentityID: fe.IdentityID,
		Quality:    fe.Quality,
		SourceKey:  fe.SourceKey,
		CreatedAt:  fe.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *IdentityHandler) ListFaces(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	faces, err := h.db.ListFaceEmbeddings(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.FaceEmbeddingResponse, 0, len(faces))
	for _, f := range faces {
		resp = append(resp, dto.FaceEmbeddingResponse{
			ID:         f.ID,
			IdentityID: f.IdentityID,
			Quality:    f.Quality,
			SourceKey:  f.SourceKey,
			CreatedAt:  f.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"faces": resp, "total": len(resp)})
}

func (h *IdentityHandler) DeleteFace(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}
	faceID, err := uuid.Parse(c.Param("faceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid face id"})
		return
	}

	if err := h.db.DeleteFaceEmbedding(c.Request.Context(), identityID, faceID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.notifyReload()
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Identify matches an uploaded photo against enrolled identities. Read-only:
// no liveness, no attendance, just "who is this".
func (h *IdentityHandler) Identify(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EncodeFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face encoder not initialized"})
		return
	}

	embedding, _, err := h.EncodeFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	matches, err := h.db.SearchFaces(c.Request.Context(), embedding, h.Tolerance, 5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.IdentifyResult, 0, len(matches))
	for _, m := range matches {
		conf := 1 - m.Distance
		if conf < 0 {
			conf = 0
		}
		results = append(results, dto.IdentifyResult{
			IdentityID: m.IdentityID,
			Name:       m.Name,
			Distance:   m.Distance,
			Confidence: conf,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}
