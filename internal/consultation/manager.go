// Package consultation runs one triage conversation: it turns finalized
// utterances into chat turns, asks the assistant for replies and, when a
// reply closes the triage, saves the medical record.
package consultation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lukasbauer/lucilta/internal/eventlog"
	"github.com/lukasbauer/lucilta/internal/llm"
	"github.com/lukasbauer/lucilta/internal/notifications"
	"github.com/lukasbauer/lucilta/internal/store"
	"github.com/lukasbauer/lucilta/internal/triage"
)

// Fixed assistant texts.
const (
	Greeting           = "Olá! Sou seu assistente virtual de triagem médica. Por favor, me diga seu nome para começarmos."
	ErrorFallback      = "Desculpe, ocorreu um erro ao processar sua mensagem. Por favor, tente novamente."
	EmptyReplyFallback = "Desculpe, não consegui processar sua mensagem."
)

// End reasons.
const (
	ReasonCompleted = "completed"
	ReasonHangup    = "hangup"
	ReasonShutdown  = "shutdown"
)

// Listener is the speech side of a session. The segmenter implements it.
type Listener interface {
	Pause()
	Resume()
	Reset()
	Close()
}

// Observer receives session updates, typically to forward them to the client.
type Observer interface {
	OnTurn(turn store.Turn)
	OnListening(listening bool)
	OnEnded(out Outcome)
}

// Outcome describes how a consultation ended. Record and Analysis are set
// only when the assistant closed the triage.
type Outcome struct {
	Reason   string
	Record   *store.MedicalRecord
	Analysis *triage.Analysis
	Err      error
}

// Config wires a Manager to its collaborators. Events and Notifier are optional.
type Config struct {
	ID          string
	Chat        llm.Client
	Store       store.RecordStore
	Listener    Listener
	Observer    Observer
	Events      eventlog.Recorder
	Notifier    notifications.EmergencyNotifier
	Logger      *slog.Logger
	SaveTimeout time.Duration
}

// Manager owns the ordered turn list of one consultation.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	turns []store.Turn
	ended bool
	busy  bool
}

// New creates a manager. Call Start before feeding utterances.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With("consultation_id", cfg.ID),
		now:    time.Now,
	}
}

// ID returns the consultation identifier.
func (m *Manager) ID() string { return m.cfg.ID }

// Start seeds the conversation with the greeting and opens the microphone.
func (m *Manager) Start() {
	greeting := store.Turn{Role: store.RoleAssistant, Content: Greeting}

	m.mu.Lock()
	m.turns = []store.Turn{greeting}
	m.mu.Unlock()

	m.logEvent(eventlog.EventConsultationStarted, nil)
	m.logger.Info("consultation started")

	m.cfg.Observer.OnTurn(greeting)
	m.cfg.Observer.OnListening(true)
}

// HandleUtterance processes one finalized utterance: it appends the user
// turn, asks for a reply with the listener paused and either resumes
// listening or finalizes the consultation. Empty text and utterances after
// the session ended are ignored.
func (m *Manager) HandleUtterance(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	if m.busy {
		m.mu.Unlock()
		m.logger.Warn("utterance dropped, reply already in flight")
		return
	}
	m.busy = true
	userTurn := store.Turn{Role: store.RoleUser, Content: text}
	m.turns = append(m.turns, userTurn)
	messages := toMessages(m.turns)
	m.mu.Unlock()

	m.cfg.Observer.OnTurn(userTurn)
	m.logEvent(eventlog.EventUtteranceFinalized, map[string]any{"length": len([]rune(text))})

	m.cfg.Listener.Pause()
	m.cfg.Observer.OnListening(false)

	m.logEvent(eventlog.EventLLMStarted, map[string]any{"turns": len(messages)})
	start := m.now()
	reply, err := m.cfg.Chat.Reply(ctx, messages)
	switch {
	case err != nil:
		m.logger.Error("chat reply failed", "error", err)
		m.logEvent(eventlog.EventLLMError, map[string]any{"error": err.Error()})
		reply = ErrorFallback
	case strings.TrimSpace(reply) == "":
		m.logEvent(eventlog.EventLLMCompleted, map[string]any{"latency_ms": m.now().Sub(start).Milliseconds(), "empty": true})
		reply = EmptyReplyFallback
	default:
		m.logEvent(eventlog.EventLLMCompleted, map[string]any{"latency_ms": m.now().Sub(start).Milliseconds()})
	}

	m.mu.Lock()
	m.busy = false
	if m.ended {
		m.mu.Unlock()
		m.logger.Debug("reply discarded, consultation already ended")
		return
	}
	assistantTurn := store.Turn{Role: store.RoleAssistant, Content: reply}
	m.turns = append(m.turns, assistantTurn)
	m.mu.Unlock()

	m.cfg.Observer.OnTurn(assistantTurn)

	analysis := triage.AnalyzeReply(reply)
	if analysis.IsConsultationEnding {
		m.finalize(ctx, analysis, reply)
		return
	}

	m.cfg.Listener.Reset()
	m.cfg.Listener.Resume()
	m.cfg.Observer.OnListening(true)
}

// End tears the session down without writing a record. It is a no-op when
// the consultation already ended.
func (m *Manager) End(reason string) {
	if !m.markEnded() {
		return
	}

	m.cfg.Listener.Close()
	m.logger.Info("consultation ended early", "reason", reason)
	m.logEvent(eventlog.EventConsultationEnded, map[string]any{"reason": reason})
	m.cfg.Observer.OnEnded(Outcome{Reason: reason})
}

// Ended reports whether the consultation is over.
func (m *Manager) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

// Turns returns a copy of the conversation so far.
func (m *Manager) Turns() []store.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Manager) finalize(ctx context.Context, analysis triage.Analysis, reply string) {
	if !m.markEnded() {
		return
	}
	m.cfg.Listener.Close()

	m.logEvent(eventlog.EventConsultationEnding, map[string]any{
		"specialty": analysis.SpecialtyReferral,
		"emergency": analysis.IsEmergency,
	})
	if analysis.IsEmergency {
		m.logEvent(eventlog.EventEmergencyDetected, nil)
	}

	rec := triage.ExtractRecord(m.Turns(), analysis, reply)
	rec.ConsultationDate = m.now().UTC()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SaveTimeout)
	defer cancel()

	out := Outcome{Reason: ReasonCompleted, Analysis: &analysis}
	saved, err := m.cfg.Store.CreateRecord(saveCtx, rec)
	if err != nil {
		m.logger.Error("failed to save medical record", "error", err)
		m.logEvent(eventlog.EventRecordFailed, map[string]any{"error": err.Error()})
		out.Err = err
	} else {
		m.logger.Info("medical record saved", "record_id", saved.ID, "emergency", saved.EmergencyReferral)
		m.logEvent(eventlog.EventRecordSaved, map[string]any{"record_id": saved.ID})
		out.Record = saved
	}

	if analysis.IsEmergency && m.cfg.Notifier != nil {
		alert := notifications.Alert{
			ConsultationID:    m.cfg.ID,
			PatientName:       rec.PatientName,
			Symptoms:          rec.Symptoms,
			SpecialtyReferral: rec.SpecialtyReferral,
			Summary:           rec.Summary,
			At:                rec.ConsultationDate,
		}
		if saved != nil {
			alert.RecordID = saved.ID
		}
		m.cfg.Notifier.NotifyEmergency(ctx, alert)
	}

	m.logEvent(eventlog.EventConsultationEnded, map[string]any{"reason": ReasonCompleted})
	m.cfg.Observer.OnEnded(out)
}

func (m *Manager) markEnded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return false
	}
	m.ended = true
	return true
}

func (m *Manager) logEvent(t eventlog.EventType, data map[string]any) {
	if m.cfg.Events == nil {
		return
	}
	m.cfg.Events.LogAsync(m.cfg.ID, t, data)
}

func toMessages(turns []store.Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

type nopObserver struct{}

func (nopObserver) OnTurn(store.Turn) {}
func (nopObserver) OnListening(bool)  {}
func (nopObserver) OnEnded(Outcome)   {}
