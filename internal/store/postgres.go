package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// PostgresStore persists records in PostgreSQL, with the conversation kept as
// a jsonb array. Schema lives in migrations/ and is applied externally.
type PostgresStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const recordColumns = `id, patient_name, symptoms, medical_history, recommendation,
	specialty_referral, emergency_referral, summary, consultation_date, conversation_history`

func (s *PostgresStore) CreateRecord(ctx context.Context, rec MedicalRecord) (*MedicalRecord, error) {
	rec, err := Prepare(rec, s.now())
	if err != nil {
		return nil, err
	}

	history, err := json.Marshal(rec.ConversationHistory)
	if err != nil {
		return nil, oops.In("store").Code("pg_encode").Wrapf(err, "failed to encode conversation history")
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO medical_records (id, patient_name, symptoms, medical_history, recommendation,
			specialty_referral, emergency_referral, summary, consultation_date, conversation_history)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+recordColumns,
		rec.PatientName, rec.Symptoms, rec.MedicalHistory, rec.Recommendation,
		rec.SpecialtyReferral, rec.EmergencyReferral, rec.Summary, rec.ConsultationDate, history,
	)

	out, err := scanRecord(row)
	if err != nil {
		return nil, oops.In("store").Code("pg_insert").Wrapf(err, "failed to insert medical record")
	}
	return &out, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]MedicalRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM medical_records
		ORDER BY consultation_date DESC
	`)
	if err != nil {
		return nil, oops.In("store").Code("pg_query").Wrapf(err, "failed to list medical records")
	}
	return collectRecords(rows)
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*MedicalRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	row := s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM medical_records
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("store").Code("pg_query").With("id", id).Wrapf(err, "failed to get medical record")
	}
	return &rec, nil
}

func (s *PostgresStore) FindRecordsByPatientName(ctx context.Context, name string) ([]MedicalRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM medical_records
		WHERE patient_name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY consultation_date DESC
	`, escapeLike(name))
	if err != nil {
		return nil, oops.In("store").Code("pg_query").Wrapf(err, "failed to search medical records")
	}
	return collectRecords(rows)
}

func (s *PostgresStore) Close(context.Context) error {
	s.db.Close()
	return nil
}

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanRecord(row pgx.Row) (MedicalRecord, error) {
	var r MedicalRecord
	var history []byte
	err := row.Scan(
		&r.ID, &r.PatientName, &r.Symptoms, &r.MedicalHistory, &r.Recommendation,
		&r.SpecialtyReferral, &r.EmergencyReferral, &r.Summary, &r.ConsultationDate, &history,
	)
	if err != nil {
		return r, err
	}

	r.ConsultationDate = r.ConsultationDate.UTC()
	r.ConversationHistory = []Turn{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &r.ConversationHistory); err != nil {
			return r, err
		}
	}
	return r, nil
}

func collectRecords(rows pgx.Rows) ([]MedicalRecord, error) {
	defer rows.Close()

	out := []MedicalRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, oops.In("store").Code("pg_scan").Wrapf(err, "failed to scan medical record")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("store").Code("pg_scan").Wrapf(err, "failed to read medical records")
	}
	return out, nil
}
