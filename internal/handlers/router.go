package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/middleware"
	"github.com/rotacerta/ekspedisi/internal/service"
)

type RouterConfig struct {
	Log         *logger.Logger
	CORSOrigins []string
	MediaDir    string

	Auth      *service.AuthService
	Users     *service.UserService
	Catalog   *service.CatalogService
	Shipments *service.ShipmentService
	Packages  *service.PackageService
	History   *service.HistoryService
	Dashboard *service.DashboardService
	Tracking  *service.TrackingService
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(cfg.Log),
		middleware.Metrics(),
	)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}

	// ==== Public ====
	r.GET("/health", Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.MediaDir != "" {
		r.Static("/media", cfg.MediaDir)
	}

	api := r.Group("/api")
	api.POST("/auth/register", RegisterHandler(cfg.Auth))
	api.POST("/auth/login", LoginHandler(cfg.Auth))
	api.GET("/tracking/:code", Tracking(cfg.Tracking))

	// ==== Protected ====
	auth := middleware.NewAuthMiddleware(cfg.Log, cfg.Auth)
	p := api.Group("")
	p.Use(auth.RequireAuth())

	p.POST("/auth/logout", LogoutHandler(cfg.Auth))
	p.GET("/auth/profile", ProfileHandler(cfg.Auth))
	p.PUT("/auth/profile", UpdateProfileHandler(cfg.Auth))
	p.POST("/auth/profile/photo", ProfilePhotoHandler(cfg.Auth))

	p.GET("/dashboard/stats", DashboardStats(cfg.Dashboard))

	p.GET("/service-tiers", ListTiers(cfg.Catalog))
	p.POST("/service-tiers", CreateTier(cfg.Catalog))
	p.GET("/service-tiers/:id", GetTier(cfg.Catalog))
	p.PUT("/service-tiers/:id", UpdateTier(cfg.Catalog))
	p.DELETE("/service-tiers/:id", DeleteTier(cfg.Catalog))

	p.GET("/recipients", ListRecipients(cfg.Catalog))
	p.POST("/recipients", CreateRecipient(cfg.Catalog))
	p.GET("/recipients/:id", GetRecipient(cfg.Catalog))
	p.PUT("/recipients/:id", UpdateRecipient(cfg.Catalog))
	p.DELETE("/recipients/:id", DeleteRecipient(cfg.Catalog))

	p.GET("/shipments", ListShipments(cfg.Shipments))
	p.POST("/shipments", CreateShipment(cfg.Shipments))
	p.GET("/shipments/:id", GetShipment(cfg.Shipments))
	p.PUT("/shipments/:id", UpdateShipment(cfg.Shipments))
	p.DELETE("/shipments/:id", DeleteShipment(cfg.Shipments))

	p.GET("/packages", ListPackages(cfg.Packages))
	p.POST("/packages", CreatePackage(cfg.Packages))
	p.GET("/packages/:id", GetPackage(cfg.Packages))
	p.PUT("/packages/:id", UpdatePackage(cfg.Packages))
	p.DELETE("/packages/:id", DeletePackage(cfg.Packages))
	p.POST("/packages/:id/photo", PackagePhoto(cfg.Packages))

	p.GET("/status-history", ListHistory(cfg.History))
	p.POST("/status-history", CreateHistory(cfg.History))
	p.GET("/status-history/:id", GetHistory(cfg.History))
	p.PUT("/status-history/:id", UpdateHistory(cfg.History))
	p.DELETE("/status-history/:id", DeleteHistory(cfg.History))

	p.GET("/users", ListUsers(cfg.Users))
	p.POST("/users", CreateUser(cfg.Users))
	p.GET("/users/:id", GetUser(cfg.Users))
	p.PUT("/users/:id", UpdateUser(cfg.Users))
	p.DELETE("/users/:id", DeleteUser(cfg.Users))

	return r
}
