package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/meditrace/meditrace-api/api/swagger"
	"github.com/meditrace/meditrace-api/internal/handler"
	"github.com/meditrace/meditrace-api/internal/middleware"
	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/internal/repository"
	"github.com/meditrace/meditrace-api/internal/service"
	"github.com/meditrace/meditrace-api/pkg/cache"
	"github.com/meditrace/meditrace-api/pkg/config"
	"github.com/meditrace/meditrace-api/pkg/database"
	"github.com/meditrace/meditrace-api/pkg/logger"
	corsmiddleware "github.com/meditrace/meditrace-api/pkg/middleware/cors"
	reqidmiddleware "github.com/meditrace/meditrace-api/pkg/middleware/requestid"
	"github.com/meditrace/meditrace-api/pkg/storage"
)

// @title MediTrace API
// @version 1.0.0
// @description Traceability ledger for serialized medical products
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	orgRepo := repository.NewOrganizationRepository(db)
	productRepo := repository.NewProductRepository(db)
	lotRepo := repository.NewLotRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()

	// Services.
	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT)
	inventorySvc := service.NewInventoryService(inventoryRepo, cacheRepo, metricsSvc, cfg.Inventory, logr)
	allocationSvc := service.NewAllocationService(codeRepo, inventoryRepo, logr)
	notificationSvc := service.NewNotificationService(service.NewLogDispatcher(logr), metricsSvc, cfg.Notifications, logr)
	transferSvc := service.NewTransferService(allocationSvc, ledgerRepo, codeRepo, lotRepo, orgRepo, productRepo, inventorySvc, notificationSvc, metricsSvc, cfg.Allocation, cfg.Recall, validate, logr)
	reversalSvc := service.NewReversalService(ledgerRepo, codeRepo, lotRepo, inventorySvc, notificationSvc, metricsSvc, cfg.Recall, logr)
	lotSvc := service.NewLotService(lotRepo, productRepo, orgRepo, inventorySvc, metricsSvc, validate, logr)
	productSvc := service.NewProductService(productRepo, validate, logr)
	orgSvc := service.NewOrganizationService(orgRepo, logr)
	historySvc := service.NewHistoryService(ledgerRepo, codeRepo, nil, logr)

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(historySvc, lotRepo, productRepo, nil, store, signer, cfg.Reports, logr)
		reportSvc.Start(ctx)
		defer reportSvc.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Reports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reportSvc.Cleanup(cfg.Reports.SignedURLTTL)
				}
			}
		}()
	}

	// Handlers.
	lotHandler := handler.NewLotHandler(lotSvc)
	productHandler := handler.NewProductHandler(productSvc)
	orgHandler := handler.NewOrganizationHandler(orgSvc)
	transferHandler := handler.NewTransferHandler(transferSvc)
	reversalHandler := handler.NewReversalHandler(reversalSvc)
	inventoryHandler := handler.NewInventoryHandler(inventorySvc)
	historyHandler := handler.NewHistoryHandler(historySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	holders := []models.OrgType{models.OrgTypeManufacturer, models.OrgTypeDistributor, models.OrgTypeHospital}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.POST("/lots", middleware.RequireOrgTypes(models.OrgTypeManufacturer), lotHandler.Register)
		api.GET("/lots", lotHandler.List)
		api.GET("/lots/:id", lotHandler.Get)

		api.POST("/products", middleware.RequireOrgTypes(models.OrgTypeManufacturer), productHandler.Create)
		api.GET("/products", productHandler.List)
		api.GET("/products/:id", productHandler.Get)
		api.PATCH("/products/:id/deactivate", middleware.RequireOrgTypes(models.OrgTypeManufacturer), productHandler.Deactivate)

		api.GET("/organizations", orgHandler.List)
		api.GET("/organizations/:id", orgHandler.Get)
		api.PATCH("/organizations/:id/status", middleware.RequireOrgTypes(models.OrgTypeAdmin), orgHandler.SetStatus)

		api.POST("/transfers/shipments", middleware.RequireOrgTypes(models.OrgTypeManufacturer, models.OrgTypeDistributor), transferHandler.Ship)
		api.POST("/transfers/treatments", middleware.RequireOrgTypes(models.OrgTypeHospital), transferHandler.Treat)
		api.POST("/transfers/disposals", middleware.RequireOrgTypes(holders...), transferHandler.Dispose)

		api.POST("/recalls/:batchId", middleware.RequireOrgTypes(models.OrgTypeHospital), reversalHandler.Recall)
		api.POST("/returns/:batchId", middleware.RequireOrgTypes(models.OrgTypeDistributor, models.OrgTypeHospital), reversalHandler.Return)

		api.GET("/inventory", middleware.RequireOrgTypes(holders...), inventoryHandler.Available)
		api.GET("/inventory/summary", middleware.RequireOrgTypes(holders...), inventoryHandler.Summary)

		api.GET("/history", historyHandler.List)
		api.GET("/history/export", historyHandler.Export)
		api.GET("/codes/:code/history", historyHandler.CodeHistory)

		if reportSvc != nil {
			reportHandler := handler.NewReportHandler(reportSvc)
			api.POST("/reports/traceability", reportHandler.Request)
			api.GET("/reports/download", reportHandler.Download)
			api.GET("/reports/:id", reportHandler.Get)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
