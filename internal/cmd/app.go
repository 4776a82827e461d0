package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/priyanshudevsingh/quickmailer/internal/attachment"
	"github.com/priyanshudevsingh/quickmailer/internal/auth"
	"github.com/priyanshudevsingh/quickmailer/internal/config"
	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/delivery"
	"github.com/priyanshudevsingh/quickmailer/internal/handlers"
	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
	"github.com/priyanshudevsingh/quickmailer/internal/metrics"
	"github.com/priyanshudevsingh/quickmailer/internal/stats"
	"github.com/priyanshudevsingh/quickmailer/internal/template"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/middlewares"
	"github.com/priyanshudevsingh/quickmailer/pkg/cache"
	"github.com/priyanshudevsingh/quickmailer/pkg/cookie"
	"github.com/priyanshudevsingh/quickmailer/pkg/db"
	"github.com/priyanshudevsingh/quickmailer/pkg/health"
	"github.com/priyanshudevsingh/quickmailer/pkg/job"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer/gmail"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer/resend"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer/smtp"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
	"github.com/priyanshudevsingh/quickmailer/pkg/redis"
	"github.com/priyanshudevsingh/quickmailer/pkg/secret"
	"github.com/priyanshudevsingh/quickmailer/pkg/storage"
)

const (
	requestTimeout  = 30 * time.Second
	lockPrefix      = "quickmailer:lock:"
	userCachePrefix = "quickmailer:user"
	userCacheTTL    = 30 * time.Second
	userCacheSize   = 10000
)

// app holds the wired services shared by serve and worker.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	jobs    *job.Manager

	auth        *auth.Service
	templates   *template.Service
	attachments *attachment.Service
	delivery    *delivery.Service
	stats       *stats.Service

	checks  health.Checks
	closers []func(context.Context) error
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load[config.Config](envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.Log, httpapi.RequestIDExtractor(), httpapi.UserIDExtractor())
	return cfg, log, nil
}

// newApp connects the backing stores and builds every service. With
// workers false the job manager only inserts jobs.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, workers bool) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		checks:  health.Checks{},
	}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.pool, err = db.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.checks["postgres"] = db.Healthcheck(a.pool)
	a.closers = append(a.closers, db.Shutdown(a.pool))

	cipher, err := secret.New(cfg.Secret.Key)
	if err != nil {
		return nil, err
	}

	credOpts := []credential.Option{
		credential.WithLogger(log),
		credential.WithObserver(a.metrics.TokenOutcome),
	}
	var userCache cache.Cache[*user.User] = cache.NewMemory[*user.User](cache.WithMaxEntries(userCacheSize))
	if cfg.Redis.Enabled() {
		client, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.checks["redis"] = redis.Healthcheck(client)
		a.closers = append(a.closers, redis.Shutdown(client))
		locker := redis.NewLocker(client, lockPrefix)
		credOpts = append(credOpts, credential.WithLocker(credential.RedisLocker(locker, cfg.RefreshLockTTL, cfg.RefreshLockTTL)))
		// Shared so counter updates from worker processes invalidate it.
		userCache = cache.NewRedis[*user.User](client, userCachePrefix, nil)
	} else {
		log.Warn("REDIS_URL not set, token refreshes are serialized per process only")
	}

	userRepo := user.NewPostgresRepo(a.pool, cipher)
	users := user.NewService(userRepo, log, user.WithCache(userCache, userCacheTTL))

	google, err := oauth.NewGoogleProvider(cfg.Google)
	if err != nil {
		return nil, err
	}
	tokens := credential.NewManager(userRepo, google, credOpts...)

	jwt, err := auth.NewTokens(cfg.JWT)
	if err != nil {
		return nil, err
	}
	a.auth = auth.NewService(google, users, jwt, log)

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.attachments = attachment.NewService(attachment.NewPostgresRepo(a.pool), store,
		attachment.WithMaxSize(cfg.Storage.MaxFileSize),
		attachment.WithLogger(log),
	)
	a.templates = template.NewService(template.NewPostgresRepo(a.pool), log)
	a.stats = stats.NewService(users, a.templates, a.attachments)

	builder := mailer.NewBuilder(
		mailer.WithFetcher(a.attachments),
		mailer.WithBuilderLogger(log),
	)
	provider, err := mailProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	var notifier delivery.Notifier
	if cfg.Resend.Enabled() {
		m := mailer.New(resend.New(cfg.Resend), mailer.NewRenderer(delivery.NotificationTemplates()), cfg.Mailer)
		notifier = delivery.NewReportNotifier(m, users)
	}

	a.delivery = delivery.NewService(delivery.Deps{
		Tokens:   tokens,
		Builder:  builder,
		Provider: provider,
		Orchestrator: delivery.NewOrchestrator(tokens, builder, provider,
			delivery.WithPacing(cfg.SendDelay, cfg.DraftDelay),
			delivery.WithRecorder(a.metrics),
			delivery.WithOrchestratorLogger(log),
		),
		Templates:   a.templates,
		Attachments: a.attachments,
		Counters:    users,
		Runs:        delivery.NewPostgresRunRepo(a.pool),
		Notifier:    notifier,
		Logger:      log,
	})

	jobOpts := []job.Option{
		job.WithLogger(log),
		job.WithMaxWorkers(cfg.JobWorkers),
		job.WithJobTimeout(cfg.JobTimeout),
		job.WithTask(delivery.NewBulkSendTask(a.delivery)),
		job.WithTask(delivery.NewScheduledSendTask(a.delivery)),
		job.WithScheduledTask(attachment.NewPurgeTask(a.attachments)),
	}
	if !workers {
		jobOpts = append(jobOpts, job.WithoutWorkers())
	}
	a.jobs, err = job.NewManager(a.pool, jobOpts...)
	if err != nil {
		return nil, err
	}
	// The tasks above need the service, so jobs are attached last.
	a.delivery.Jobs = a.jobs
	a.checks["jobs"] = job.Healthcheck(a.jobs)

	return a, nil
}

func mailProvider(cfg *config.Config, log *slog.Logger) (mailer.Provider, error) {
	switch cfg.MailProvider {
	case config.ProviderGmail:
		return gmail.New(cfg.Gmail, gmail.WithLogger(log)), nil
	case config.ProviderSMTP:
		log.Warn("delivering through SMTP relay, drafts are unavailable", slog.String("host", cfg.SMTP.Host))
		return smtp.New(cfg.SMTP), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

// start runs the job manager. River stops hard when its start context is
// cancelled, so it gets a detached one and stop drains it gracefully.
func (a *app) start(ctx context.Context) error {
	return a.jobs.Start(context.WithoutCancel(ctx))
}

func (a *app) stop(ctx context.Context) error {
	if a.jobs == nil {
		return nil
	}
	return a.jobs.Stop(ctx)
}

// close releases connections in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	logger.Flush(a.cfg.Log)
	return errors.Join(errs...)
}

// server builds the HTTP API.
func (a *app) server() (*httpapi.Server, error) {
	cookies, err := cookie.New(a.cfg.CookieSecret,
		cookie.WithSecure(a.cfg.CookieSecure),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
	if err != nil {
		return nil, err
	}

	guard := handlers.Guard{
		Auth:    middlewares.Auth(a.auth),
		Timeout: middlewares.Timeout(requestTimeout),
	}
	maxUpload := a.cfg.Storage.MaxFileSize

	return httpapi.NewServer(
		httpapi.WithLogger(a.log),
		httpapi.WithMiddleware(
			middlewares.RequestID(),
			middlewares.Recover(),
			middlewares.CORS(
				middlewares.WithAllowOrigins(a.cfg.FrontendURL),
				middlewares.WithAllowCredentials(),
			),
		),
		httpapi.WithHandlers(
			handlers.NewAuthHandler(a.auth, cookies, a.cfg.FrontendURL, guard),
			handlers.NewTemplateHandler(a.templates, guard),
			handlers.NewAttachmentHandler(a.attachments, maxUpload, guard),
			handlers.NewEmailHandler(a.delivery, maxUpload, guard),
			handlers.NewStatsHandler(a.stats, guard),
		),
		httpapi.WithHealthChecks(a.checks),
		httpapi.WithMount("/metrics", a.metrics.Handler()),
		httpapi.WithRequestObserver(a.metrics.ObserveHTTP),
	), nil
}
