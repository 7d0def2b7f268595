package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lukasbauer/lucilta/internal/eventlog"
	"github.com/lukasbauer/lucilta/internal/llm"
	"github.com/lukasbauer/lucilta/internal/notifications"
	"github.com/lukasbauer/lucilta/internal/segmenter"
	"github.com/lukasbauer/lucilta/internal/store"
	"github.com/lukasbauer/lucilta/internal/stt"
)

type RouterConfig struct {
	PublicBaseURL string

	// Session tickets
	SessionSecret string
	TicketTTL     time.Duration

	// Consultation tuning
	Segmenter    segmenter.Config
	SaveTimeout  time.Duration // bound on the final record write
	WriteTimeout time.Duration // per WebSocket frame
}

// Services are the collaborators shared by every request. Events, Notifier
// and DialSTT are optional.
type Services struct {
	Store    store.RecordStore
	Chat     llm.Client
	Events   *eventlog.Logger
	Notifier notifications.EmergencyNotifier
	DialSTT  func(ctx context.Context) (stt.Client, error)
	Sessions *SessionRegistry
}

type Router struct {
	cfg      RouterConfig
	logger   *slog.Logger
	store    store.RecordStore
	chat     llm.Client
	events   *eventlog.Logger
	notifier notifications.EmergencyNotifier
	dialSTT  func(ctx context.Context) (stt.Client, error)
	sessions *SessionRegistry
	tickets  *Tickets
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *slog.Logger, svc Services) http.Handler {
	return withSentryRecovery(withCORS(newRouter(cfg, logger, svc).mux))
}

func newRouter(cfg RouterConfig, logger *slog.Logger, svc Services) *Router {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if svc.Sessions == nil {
		svc.Sessions = NewSessionRegistry()
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    svc.Store,
		chat:     svc.Chat,
		events:   svc.Events,
		notifier: svc.Notifier,
		dialSTT:  svc.DialSTT,
		sessions: svc.Sessions,
		tickets:  NewTickets(cfg.SessionSecret, cfg.TicketTTL),
		mux:      http.NewServeMux(),
	}
	r.routes()
	return r
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /{$}", r.handleRoot)
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Medical records (open, as served to the triage UI)
	r.mux.HandleFunc("POST /api/medical-records", r.handleCreateRecord)
	r.mux.HandleFunc("GET /api/medical-records", r.handleListRecords)
	r.mux.HandleFunc("GET /api/medical-records/patient/{name}", r.handleFindRecordsByPatient)
	r.mux.HandleFunc("GET /api/medical-records/{id}", r.handleGetRecord)

	// Live consultations
	r.mux.HandleFunc("POST /api/consultations", r.handleCreateConsultation)
	r.mux.HandleFunc("GET /api/consultations/ws", r.handleConsultationWS)
}

func (r *Router) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("API de Telemedicina funcionando!"))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz fails while draining so load balancers stop routing new
// consultations here.
func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				writeJSON(w, http.StatusInternalServerError, envelope{Message: "Erro interno do servidor"})
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		if req != nil {
			scope.SetRequest(req)
		}
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}

func wsURLFromPublicBase(publicBase string) string {
	// http://x -> ws://x
	// https://x -> wss://x
	publicBase = strings.TrimSuffix(publicBase, "/")
	if strings.HasPrefix(publicBase, "https://") {
		return "wss://" + strings.TrimPrefix(publicBase, "https://")
	}
	if strings.HasPrefix(publicBase, "http://") {
		return "ws://" + strings.TrimPrefix(publicBase, "http://")
	}
	// assume already host[:port]
	return "wss://" + publicBase
}
