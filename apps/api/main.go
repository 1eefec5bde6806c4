package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	agencieshandler "github.com/hardhat-labs/crewdeck/domains/agencies/be/handler"
	agenciesrepo "github.com/hardhat-labs/crewdeck/domains/agencies/be/repo"
	agenciesservice "github.com/hardhat-labs/crewdeck/domains/agencies/be/service"
	audithandler "github.com/hardhat-labs/crewdeck/domains/audit/be/handler"
	auditrepo "github.com/hardhat-labs/crewdeck/domains/audit/be/repo"
	auditservice "github.com/hardhat-labs/crewdeck/domains/audit/be/service"
	claimshandler "github.com/hardhat-labs/crewdeck/domains/claims/be/handler"
	claimsrepo "github.com/hardhat-labs/crewdeck/domains/claims/be/repo"
	claimsservice "github.com/hardhat-labs/crewdeck/domains/claims/be/service"
	compliancehandler "github.com/hardhat-labs/crewdeck/domains/compliance/be/handler"
	compliancerepo "github.com/hardhat-labs/crewdeck/domains/compliance/be/repo"
	complianceservice "github.com/hardhat-labs/crewdeck/domains/compliance/be/service"
	laborhandler "github.com/hardhat-labs/crewdeck/domains/laborrequests/be/handler"
	laborrepo "github.com/hardhat-labs/crewdeck/domains/laborrequests/be/repo"
	laborservice "github.com/hardhat-labs/crewdeck/domains/laborrequests/be/service"
	messaginghandler "github.com/hardhat-labs/crewdeck/domains/messaging/be/handler"
	messagingrepo "github.com/hardhat-labs/crewdeck/domains/messaging/be/repo"
	messagingservice "github.com/hardhat-labs/crewdeck/domains/messaging/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	profileshandler "github.com/hardhat-labs/crewdeck/domains/profiles/be/handler"
	profilesrepo "github.com/hardhat-labs/crewdeck/domains/profiles/be/repo"
	profilesservice "github.com/hardhat-labs/crewdeck/domains/profiles/be/service"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/mailer"
	platformmiddleware "github.com/hardhat-labs/crewdeck/platform/go/middleware"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
	"github.com/hardhat-labs/crewdeck/platform/go/storage"
	"github.com/hardhat-labs/crewdeck/platform/go/taxonomy"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"1m"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"gcs"` // gcs | memory
	StorageBucket  string `env:"STORAGE_BUCKET"`                   // required when STORAGE_BACKEND=gcs
	StoragePrefix  string `env:"STORAGE_PREFIX"`                   // optional environment prefix for object paths

	MailerKind         string `env:"MAILER_KIND" envDefault:"log"` // log | noop | webhook
	MailerWebhookURL   string `env:"MAILER_WEBHOOK_URL"`
	MailerWebhookToken string `env:"MAILER_WEBHOOK_TOKEN"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	tax, err := taxonomy.Load("")
	if err != nil {
		logger.Fatal("load trade/region taxonomy", zap.Error(err))
	}

	mail, err := mailer.NewSender(cfg.MailerKind, cfg.MailerWebhookURL, cfg.MailerWebhookToken, logger)
	if err != nil {
		logger.Fatal("init mailer", zap.Error(err))
	}

	var blobs storage.BlobStore
	switch cfg.StorageBackend {
	case "gcs":
		if cfg.StorageBucket == "" {
			logger.Fatal("storage bucket required when STORAGE_BACKEND=gcs")
		}
		gcsClient, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		blobs = storage.NewGCSBlobStore(gcsClient)
	case "memory":
		logger.Warn("using in-memory blob store; uploads are lost on restart")
		blobs = storage.NewMemoryBlobStore()
	default:
		logger.Fatal("invalid STORAGE_BACKEND (use gcs or memory)", zap.String("backend", cfg.StorageBackend))
	}

	profileStore, err := persistence.NewProfileStore(ctx, pool)
	if err != nil {
		logger.Fatal("init profile store", zap.Error(err))
	}
	agencyStore, err := persistence.NewAgencyStore(ctx, pool)
	if err != nil {
		logger.Fatal("init agency store", zap.Error(err))
	}
	claimStore, err := persistence.NewClaimStore(ctx, pool)
	if err != nil {
		logger.Fatal("init claim store", zap.Error(err))
	}
	laborRequestStore, err := persistence.NewLaborRequestStore(ctx, pool)
	if err != nil {
		logger.Fatal("init labor request store", zap.Error(err))
	}
	conversationStore, err := persistence.NewConversationStore(ctx, pool)
	if err != nil {
		logger.Fatal("init conversation store", zap.Error(err))
	}
	complianceStore, err := persistence.NewComplianceStore(ctx, pool)
	if err != nil {
		logger.Fatal("init compliance store", zap.Error(err))
	}
	auditStore, err := persistence.NewAuditStore(ctx, pool)
	if err != nil {
		logger.Fatal("init audit store", zap.Error(err))
	}

	profilesService := profilesservice.New(profilesrepo.NewPostgresRepository(profileStore))
	profilesHTTPHandler := profileshandler.New(profilesService, logger)

	agenciesService := agenciesservice.New(
		agenciesrepo.NewPostgresRepository(agencyStore, auditStore), tax, logger)
	agenciesHTTPHandler := agencieshandler.New(agenciesService, logger)

	claimsService := claimsservice.New(
		claimsrepo.NewPostgresRepository(claimStore, agencyStore, profileStore, auditStore), mail, logger)
	claimsHTTPHandler := claimshandler.New(claimsService, logger)

	laborService := laborservice.New(
		laborrepo.NewPostgresRepository(laborRequestStore, agencyStore), tax, mail, logger)
	laborHTTPHandler := laborhandler.New(laborService, logger)

	messagingService := messagingservice.New(
		messagingrepo.NewPostgresRepository(conversationStore, agencyStore), logger)
	messagingHTTPHandler := messaginghandler.New(messagingService, logger)

	complianceService := complianceservice.New(
		compliancerepo.NewPostgresRepository(complianceStore, agencyStore, auditStore),
		blobs,
		complianceservice.Config{Bucket: cfg.StorageBucket, EnvPrefix: cfg.StoragePrefix},
		logger)
	complianceHTTPHandler := compliancehandler.New(complianceService, logger)

	auditService := auditservice.New(auditrepo.NewPostgresRepository(auditStore), logger)
	auditHTTPHandler := audithandler.New(auditService, logger)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)
	profileCfg := access.Config{CacheTTL: cfg.ProfileCacheTTL}

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	registerDocsRoutes(rootRouter, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)

	// Public directory and intake routes. Profiles are attached when a token is
	// present so admin callers keep their extra query options.
	agenciesValidator := mustNewSpecValidator(logger, "contracts/agencies.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(access.WithOptionalProfile(profilesService, profileCfg))
		r.With(agenciesValidator).Get("/agencies", agenciesHTTPHandler.Search)
		r.With(agenciesValidator).Get("/agencies/{agencyId}", agenciesHTTPHandler.Get)
	})

	laborValidator := mustNewSpecValidator(logger, "contracts/labor-requests.yaml")
	apiRouter.With(laborValidator).Post("/labor-requests", laborHTTPHandler.Submit)

	// Authenticated routes: JWT identity plus a resolved profile row.
	apiRouter.Group(func(r chi.Router) {
		r.Use(access.WithProfile(profilesService, profileCfg))

		profilesValidator := mustNewSpecValidator(logger, "contracts/profiles.yaml")
		r.Group(func(r chi.Router) {
			r.Use(profilesValidator)
			r.Get("/profiles/me", profilesHTTPHandler.Me)
			r.Put("/profiles/me", profilesHTTPHandler.UpdateMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(agenciesValidator)
			r.Put("/agencies/{agencyId}", agenciesHTTPHandler.Update)
			r.Put("/agencies/{agencyId}/trades", agenciesHTTPHandler.UpdateSelections)
		})

		claimsValidator := mustNewSpecValidator(logger, "contracts/claims.yaml")
		r.With(claimsValidator).Post("/claims", claimsHTTPHandler.Submit)

		r.Group(func(r chi.Router) {
			r.Use(laborValidator)
			r.Get("/agencies/{agencyId}/labor-requests", laborHTTPHandler.Inbox)
			r.Put("/agencies/{agencyId}/labor-requests/{notificationId}/read", laborHTTPHandler.MarkRead)
		})

		complianceValidator := mustNewSpecValidator(logger, "contracts/compliance.yaml")
		r.Group(func(r chi.Router) {
			r.Use(complianceValidator)
			r.Get("/agencies/{agencyId}/compliance", complianceHTTPHandler.List)
			r.Post("/agencies/{agencyId}/compliance", complianceHTTPHandler.Register)
		})

		messagingValidator := mustNewSpecValidator(logger, "contracts/messaging.yaml")
		r.Group(func(r chi.Router) {
			r.Use(messagingValidator)
			r.Post("/messages/conversations", messagingHTTPHandler.Open)
			r.Get("/messages/conversations", messagingHTTPHandler.List)
			r.Get("/messages/conversations/{conversationId}", messagingHTTPHandler.Get)
			r.Post("/messages/conversations/{conversationId}/messages", messagingHTTPHandler.Send)
			r.Put("/messages/conversations/{conversationId}/read", messagingHTTPHandler.MarkRead)
		})

		// Back-office routes. Services re-check the admin role; the gate here
		// keeps non-admin traffic out of the handlers entirely.
		r.Group(func(r chi.Router) {
			r.Use(access.RequireRole("admin"))

			adminValidator := mustNewSpecValidator(logger, "contracts/admin.yaml")
			r.Use(adminValidator)

			r.Get("/admin/profiles", profilesHTTPHandler.AdminList)

			r.Post("/admin/agencies", agenciesHTTPHandler.AdminCreate)
			r.Put("/admin/agencies/{agencyId}/status", agenciesHTTPHandler.AdminSetStatus)

			r.Get("/admin/claims", claimsHTTPHandler.AdminList)
			r.Get("/admin/claims/{claimId}", claimsHTTPHandler.AdminGet)
			r.Post("/admin/claims/{claimId}/review", claimsHTTPHandler.Review)
			r.Post("/admin/claims/{claimId}/approve", claimsHTTPHandler.Approve)
			r.Post("/admin/claims/{claimId}/reject", claimsHTTPHandler.Reject)

			r.Get("/admin/compliance", complianceHTTPHandler.AdminList)
			r.Put("/admin/compliance/{documentId}", complianceHTTPHandler.AdminReview)

			r.Get("/admin/audit-log", auditHTTPHandler.AdminList)
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
