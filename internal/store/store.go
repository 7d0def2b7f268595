package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Turn roles.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// ErrNotFound is returned when a record lookup has no match. Malformed
// identifiers are reported the same way.
var ErrNotFound = errors.New("medical record not found")

// Turn is one message of a consultation, in the order it was exchanged.
type Turn struct {
	Role    string `json:"role" bson:"role" validate:"required,oneof=assistant user"`
	Content string `json:"content" bson:"content" validate:"required"`
}

// MedicalRecord is the structured outcome of one ended consultation.
// Records are never updated after creation.
type MedicalRecord struct {
	ID                  string    `json:"_id,omitempty"`
	PatientName         string    `json:"patientName" validate:"required"`
	Symptoms            string    `json:"symptoms" validate:"required"`
	MedicalHistory      string    `json:"medicalHistory"`
	Recommendation      string    `json:"recommendation" validate:"required"`
	SpecialtyReferral   string    `json:"specialtyReferral"`
	EmergencyReferral   bool      `json:"emergencyReferral"`
	Summary             string    `json:"summary" validate:"required"`
	ConsultationDate    time.Time `json:"consultationDate"`
	ConversationHistory []Turn    `json:"conversationHistory" validate:"dive"`
}

// RecordStore persists medical records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec MedicalRecord) (*MedicalRecord, error)
	// ListRecords returns all records, newest consultation first.
	ListRecords(ctx context.Context) ([]MedicalRecord, error)
	GetRecord(ctx context.Context, id string) (*MedicalRecord, error)
	// FindRecordsByPatientName matches name as a case-insensitive substring of
	// patientName, newest consultation first.
	FindRecordsByPatientName(ctx context.Context, name string) ([]MedicalRecord, error)
	Close(ctx context.Context) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Prepare normalizes a record for insertion and validates required fields.
// now is used when the record carries no consultation date.
func Prepare(rec MedicalRecord, now time.Time) (MedicalRecord, error) {
	rec.ID = ""
	rec.PatientName = strings.TrimSpace(rec.PatientName)
	if rec.ConsultationDate.IsZero() {
		rec.ConsultationDate = now
	}
	rec.ConsultationDate = rec.ConsultationDate.UTC()
	if rec.ConversationHistory == nil {
		rec.ConversationHistory = []Turn{}
	}

	if err := validate.Struct(rec); err != nil {
		return rec, oops.
			In("store").
			Code("validation_failed").
			Wrapf(err, "MedicalRecord validation failed")
	}
	return rec, nil
}

// IsValidationError reports whether err came from Prepare.
func IsValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}
