package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studtime/studtime/pkg/logger"
	corsmiddleware "github.com/studtime/studtime/pkg/middleware/cors"
	reqidmiddleware "github.com/studtime/studtime/pkg/middleware/requestid"
)

// RouterConfig bundles the handlers and middleware inputs for route setup.
type RouterConfig struct {
	Logger         *zap.Logger
	AllowedOrigins []string

	Timetables  *TimetableHandler
	Overlays    *OverlayHandler
	Preferences *PreferenceHandler
	Users       *UserHandler
	Metrics     *MetricsHandler
}

// NewRouter assembles the gin engine with the common middleware chain and
// every API route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))

	r.GET("/health", cfg.Metrics.Health)
	r.GET("/metrics", cfg.Metrics.Prometheus)

	api := r.Group("/api/v1")

	api.POST("/users", cfg.Users.Register)
	api.GET("/users/:id", cfg.Users.Get)
	api.PUT("/users/:id/session", cfg.Users.StoreSession)
	api.DELETE("/users/:id/session", cfg.Users.DropSession)

	api.GET("/users/:id/timetable", cfg.Timetables.Get)
	api.GET("/users/:id/timetable/image", cfg.Timetables.GetImage)
	api.GET("/users/:id/timetable/pdf", cfg.Timetables.GetPDF)
	api.GET("/users/:id/timetable/csv", cfg.Timetables.GetCSV)
	api.GET("/groups/:groupId/timetable", cfg.Timetables.GetGroup)

	api.GET("/users/:id/overlays", cfg.Overlays.List)
	api.POST("/users/:id/overlays", cfg.Overlays.Create)
	api.PUT("/users/:id/overlays/:overlayId", cfg.Overlays.Update)
	api.DELETE("/users/:id/overlays/:overlayId", cfg.Overlays.Disable)
	api.POST("/users/:id/overlays/series", cfg.Overlays.ApplySeries)
	api.DELETE("/users/:id/overlays/series/:seriesId", cfg.Overlays.DeleteSeries)

	api.GET("/users/:id/preferences", cfg.Preferences.Get)
	api.PUT("/users/:id/preferences", cfg.Preferences.Update)

	return r
}
