package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"deepreport/internal/config"
	"deepreport/internal/crypto"
	"deepreport/internal/database"
	"deepreport/internal/events"
	"deepreport/internal/googleauth"
	"deepreport/internal/models"
	"deepreport/internal/research"
	"deepreport/internal/server"
	"deepreport/internal/services/admin"
	"deepreport/internal/services/reports"
	"deepreport/internal/services/scheduler"
	"deepreport/internal/services/tracker"
	"deepreport/internal/storage"
	"deepreport/internal/store"
)

// App holds the long-lived services of one process.
type App struct {
	ctx       context.Context
	cfg       *config.Config
	db        *gorm.DB
	store     store.Store
	broker    *events.Broker
	research  *research.Client
	tracker   *tracker.Service
	scheduler *scheduler.Service
	log       *zap.SugaredLogger
}

// newApp opens the database and builds the tracking core shared by every command.
func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{ctx: ctx, cfg: cfg, log: zap.S().Named("app")}

	db, err := database.Init(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	a.db = db
	a.store = store.NewStore(db)
	a.log.Info("database initialized")

	if cfg.Research.APIKey == "" {
		a.log.Warn("OPENAI_API_KEY is not set; research submissions will fail")
	}
	a.research = research.NewClient(cfg.Research.BaseURL, cfg.Research.APIKey,
		research.WithModel(cfg.Research.Model),
		research.WithEffort(cfg.Research.Effort),
		research.WithTimeout(cfg.Research.Timeout),
	)

	a.broker = events.NewBroker(0)
	a.tracker = tracker.NewService(ctx, db, a.store.Report(), a.research, a.broker, tracker.PollOptions{
		MaxAttempts: cfg.Research.PollAttempts,
		Interval:    cfg.Research.PollInterval,
	})
	a.log.Info("tracker service initialized")

	return a, nil
}

// startScheduler starts the maintenance jobs, creating the defaults on an empty table.
func (a *App) startScheduler() error {
	a.scheduler = scheduler.NewService(a.ctx, a.db, a.tracker)

	jobs, err := a.scheduler.ListJobs()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		defaults := []scheduler.UpsertJobRequest{
			{Name: "resume-tracking", JobType: models.JobTypeResumeTracking, Cron: "*/5 * * * *", Enabled: true},
			{Name: "cleanup-progress", JobType: models.JobTypeCleanupProgress, Cron: "0 3 * * *", Enabled: true,
				Payload: scheduler.CleanupPayload{OlderThanHours: 24 * 7}},
		}
		for _, req := range defaults {
			if _, err := a.scheduler.UpsertJob(req); err != nil {
				return fmt.Errorf("creating default job %s: %w", req.Name, err)
			}
		}
	}

	return a.scheduler.Start()
}

// serverDeps wires the optional backends. Unconfigured ones stay nil so the API reports them as unavailable.
func (a *App) serverDeps() (server.Deps, error) {
	var (
		files     reports.FileStore
		documents reports.DocumentCreator
		deps      server.Deps
	)

	if a.cfg.Storage.Endpoint != "" {
		client, err := storage.NewClient(
			storage.WithEndpoint(a.cfg.Storage.Endpoint),
			storage.WithBucket(a.cfg.Storage.Bucket),
			storage.WithAccessKey(a.cfg.Storage.AccessKey),
			storage.WithSecretKey(a.cfg.Storage.SecretKey),
			storage.WithSSL(a.cfg.Storage.UseSSL),
			storage.WithPublicBase(a.cfg.Storage.PublicBase),
		)
		if err != nil {
			return deps, fmt.Errorf("creating storage client: %w", err)
		}
		if err := client.EnsureBucket(a.ctx); err != nil {
			a.log.Warnw("storage bucket is not ready; uploads may fail", "bucket", a.cfg.Storage.Bucket, "error", err)
		}
		files = client
	} else {
		a.log.Info("S3_ENDPOINT is not set; file uploads are disabled")
	}

	if a.cfg.Google.ClientID != "" {
		cipher, err := crypto.NewCipher(a.cfg.Encryption.Key)
		if err != nil {
			return deps, fmt.Errorf("initializing encryption: %w", err)
		}
		google := googleauth.NewClient(googleauth.Config{
			ClientID:     a.cfg.Google.ClientID,
			ClientSecret: a.cfg.Google.ClientSecret,
			RedirectURL:  a.cfg.Google.RedirectURL,
			RevokeURL:    a.cfg.Google.RevokeURL,
		}, a.store.GoogleToken(), cipher)
		documents = reports.NewGoogleDocs(google, a.cfg.Google.DocsBaseURL, a.cfg.Google.DriveBaseURL, a.cfg.Google.LogoURL)
		deps.Google = google
	} else {
		a.log.Info("GOOGLE_CLIENT_ID is not set; document generation is disabled")
	}

	authenticator, err := server.NewAuthenticator(a.ctx, a.cfg.Service.Auth, a.store.User())
	if err != nil {
		return deps, err
	}

	deps.Reports = reports.NewService(a.store, a.research, a.tracker, files, documents)
	deps.Admin = admin.NewService(a.store)
	deps.Events = a.broker
	deps.Authenticator = authenticator
	if a.scheduler != nil {
		deps.Scheduler = a.scheduler
	}
	return deps, nil
}

// shutdown stops live tracking and the scheduler, then closes the database.
func (a *App) shutdown() {
	a.log.Info("shutting down")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.tracker.Shutdown()
	a.broker.Close()

	if err := database.Close(a.db); err != nil {
		a.log.Errorw("error closing database", "error", err)
	}

	a.log.Info("shutdown complete")
}
