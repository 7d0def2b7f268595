package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of consultation event
type EventType string

const (
	EventConsultationStarted EventType = "consultation_started"
	EventUtteranceFinalized  EventType = "utterance_finalized"
	EventTranscriptDiscarded EventType = "transcript_discarded"
	EventLLMStarted          EventType = "llm_started"
	EventLLMCompleted        EventType = "llm_completed"
	EventLLMError            EventType = "llm_error"
	EventConsultationEnding  EventType = "consultation_ending"
	EventEmergencyDetected   EventType = "emergency_detected"
	EventRecordSaved         EventType = "record_saved"
	EventRecordFailed        EventType = "record_failed"
	EventConsultationEnded   EventType = "consultation_ended"
)

// Recorder is the subset used by consultation sessions.
type Recorder interface {
	LogAsync(consultationID string, eventType EventType, data map[string]any)
}

// Logger provides async event logging to the database
type Logger struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// New creates a new event logger. A nil pool turns every call into a no-op.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db, timeout: 2 * time.Second}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, consultationID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || consultationID == "" {
		return nil // Silently skip if no DB or consultation ID
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO consultation_events (consultation_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, consultationID, string(eventType), encodeData(data))

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(consultationID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || consultationID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		_ = l.Log(ctx, consultationID, eventType, data)
	}()
}

func encodeData(data map[string]any) []byte {
	if data == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return []byte("{}")
	}
	return b
}
