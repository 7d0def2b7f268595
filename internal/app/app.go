package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/lukasbauer/lucilta/internal/eventlog"
	"github.com/lukasbauer/lucilta/internal/httpapi"
	"github.com/lukasbauer/lucilta/internal/llm"
	"github.com/lukasbauer/lucilta/internal/notifications"
	"github.com/lukasbauer/lucilta/internal/segmenter"
	"github.com/lukasbauer/lucilta/internal/store"
	"github.com/lukasbauer/lucilta/internal/stt"
)

type App struct {
	cfg      Config
	logger   *slog.Logger
	db       *pgxpool.Pool // nil without DATABASE_URL
	store    store.RecordStore
	eventLog *eventlog.Logger
	notifier *notifications.Dispatcher
	chat     llm.Client // nil without OPENAI_API_KEY
	sessions *httpapi.SessionRegistry
}

func New(cfg Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{
		cfg:      cfg,
		logger:   logger,
		sessions: httpapi.NewSessionRegistry(),
	}

	if cfg.DatabaseURL != "" {
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, oops.In("app").Code("postgres_connect").Wrapf(err, "failed to open PostgreSQL pool")
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, oops.In("app").Code("postgres_ping").Wrapf(err, "failed to ping PostgreSQL")
		}
		a.db = db
	}
	// Migrations are applied externally (migrations/*.sql), no runner at startup.
	a.eventLog = eventlog.New(a.db)

	switch {
	case cfg.MongoURI != "":
		s, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			a.closeDB()
			return nil, err
		}
		a.store = s
		logger.Info("record store: mongodb", "database", cfg.MongoDatabase)
	case a.db != nil:
		a.store = store.NewPostgresStore(a.db)
		logger.Info("record store: postgres")
	default:
		a.store = store.NewMemoryStore()
		logger.Warn("record store: in-memory, records are lost on restart")
	}

	if cfg.OpenAIAPIKey != "" {
		a.chat = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			MaxTokens:    cfg.OpenAIMaxTokens,
			Temperature:  cfg.OpenAITemperature,
			SystemPrompt: cfg.OpenAISystemPrompt,
		})
	} else {
		logger.Warn("OPENAI_API_KEY not set, consultations are disabled")
	}

	a.notifier = newDispatcher(cfg, logger)
	return a, nil
}

func newDispatcher(cfg Config, logger *slog.Logger) *notifications.Dispatcher {
	apns, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Warn("APNs client initialization failed", "error", err)
	}

	d := notifications.NewDispatcher(notifications.DispatcherConfig{
		Discord: notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		SMS: notifications.NewSMSClient(notifications.SMSConfig{
			AccountSID:   cfg.TwilioAccountSID,
			AuthToken:    cfg.TwilioAuthToken,
			SenderNumber: cfg.TwilioSMSFrom,
		}, logger),
		APNs:         apns,
		Phones:       cfg.OncallPhones,
		DeviceTokens: cfg.OncallDeviceTokens,
	}, logger)
	if !d.Enabled() {
		logger.Info("emergency notifications disabled, no channel configured")
	}
	return d
}

func (a *App) Router() http.Handler {
	secret := a.cfg.SessionSecret
	if secret == "" {
		secret = randomSecret()
		a.logger.Warn("SESSION_SECRET not set, using a random per-process secret")
	}

	segCfg := segmenter.DefaultConfig()
	segCfg.Silence = a.cfg.SegmentSilence
	segCfg.Inactivity = a.cfg.SegmentInactivity

	svc := httpapi.Services{
		Store:    a.store,
		Chat:     a.chat,
		Events:   a.eventLog,
		Notifier: a.notifier,
		Sessions: a.sessions,
	}
	if a.cfg.DeepgramAPIKey != "" {
		svc.DialSTT = a.dialDeepgram
	}

	return httpapi.NewRouter(httpapi.RouterConfig{
		PublicBaseURL: a.cfg.PublicBaseURL,
		SessionSecret: secret,
		TicketTTL:     a.cfg.SessionTicketTTL,
		Segmenter:     segCfg,
	}, a.logger, svc)
}

func (a *App) dialDeepgram(ctx context.Context) (stt.Client, error) {
	cfg := stt.DefaultDeepgramConfig(a.cfg.DeepgramAPIKey)
	cfg.Language = a.cfg.STTLanguage
	cfg.Endpointing = a.cfg.STTEndpointingMs

	client, err := stt.NewDeepgramClient(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Sessions exposes the live consultation registry for graceful shutdown.
func (a *App) Sessions() *httpapi.SessionRegistry { return a.sessions }

// Close waits for pending notifications and releases storage.
func (a *App) Close(ctx context.Context) error {
	a.notifier.Wait()

	var err error
	if a.store != nil {
		err = a.store.Close(ctx)
	}
	a.closeDB()
	return err
}

func (a *App) closeDB() {
	if a.db != nil {
		a.db.Close()
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
