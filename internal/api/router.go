package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceclock/internal/api/handlers"
	"github.com/your-org/faceclock/internal/api/ws"
	"github.com/your-org/faceclock/internal/auth"
	"github.com/your-org/faceclock/internal/queue"
	"github.com/your-org/faceclock/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	// EncodeFn extracts a face embedding from enrollment photo bytes.
	EncodeFn func(imageData []byte) ([]float32, float32, error)
	// MaxEmbeddings caps enrollment photos per identity.
	MaxEmbeddings int
	// Tolerance is the matching distance for photo identification.
	Tolerance float64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket feed of live attendance events
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Identities & enrollment
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.MaxEmbeddings, cfg.Tolerance)
	identityH.EncodeFn = cfg.EncodeFn
	v1.POST("/identities", identityH.Create)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id", identityH.Get)
	v1.PUT("/identities/:id", identityH.Update)
	v1.DELETE("/identities/:id", identityH.Delete)
	v1.POST("/identities/:id/faces", identityH.AddFace)
	v1.GET("/identities/:id/faces", identityH.ListFaces)
	v1.DELETE("/identities/:id/faces/:faceId", identityH.DeleteFace)
	v1.POST("/identify", identityH.Identify)

	// Attendance
	attendanceH := handlers.NewAttendanceHandler(cfg.DB)
	v1.GET("/attendance/records", attendanceH.ListRecords)
	v1.GET("/attendance/summary", attendanceH.Summary)
	v1.GET("/attendance/logs", attendanceH.ListLogs)
	v1.GET("/identities/:id/attendance", attendanceH.Status)

	// Cameras
	cameraH := handlers.NewCameraHandler(cfg.DB, cfg.Producer)
	v1.POST("/cameras", cameraH.Create)
	v1.GET("/cameras", cameraH.List)
	v1.GET("/cameras/:id", cameraH.Get)
	v1.POST("/cameras/:id/start", cameraH.Start)
	v1.POST("/cameras/:id/stop", cameraH.Stop)
	v1.DELETE("/cameras/:id", cameraH.Delete)

	return r
}
