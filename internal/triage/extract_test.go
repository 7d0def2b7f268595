package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasbauer/lucilta/internal/store"
)

func conversation(user ...string) []store.Turn {
	turns := []store.Turn{{Role: store.RoleAssistant, Content: "Olá! Por favor, me diga seu nome."}}
	for _, u := range user {
		turns = append(turns,
			store.Turn{Role: store.RoleUser, Content: u},
			store.Turn{Role: store.RoleAssistant, Content: "Entendo."},
		)
	}
	return turns
}

func TestExtractPatientName(t *testing.T) {
	tests := []struct {
		name string
		user []string
		want string
	}{
		{"meu nome é", []string{"Meu nome é Maria Souza"}, "Maria Souza"},
		{"me chamo with trailing clause", []string{"me chamo Ana e estou com febre"}, "Ana"},
		{"later turn", []string{"bom dia", "eu sou o Carlos"}, "Carlos"},
		{"bare first answer", []string{"João Pereira", "estou com tosse"}, "João Pereira"},
		{"no name", []string{"estou com dor de cabeça há dois dias"}, DefaultPatientName},
		{"no user turns", nil, DefaultPatientName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPatientName(conversation(tt.user...)))
		})
	}
}

func TestExtractSymptoms(t *testing.T) {
	tests := []struct {
		name string
		user []string
		want string
	}{
		{"estou com", []string{"Ana", "Estou com febre e tosse há três dias."}, "febre e tosse há três dias"},
		{"sinto", []string{"sinto muita tontura"}, "muita tontura"},
		{"dor", []string{"uma dor de cabeça forte"}, "dor de cabeça forte"},
		{"tenho", []string{"tenho enjoo desde ontem"}, "enjoo desde ontem"},
		{"none", []string{"Ana"}, DefaultSymptoms},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSymptoms(conversation(tt.user...)))
		})
	}
}

func TestExtractMedicalHistory(t *testing.T) {
	tests := []struct {
		name string
		user []string
		want string
	}{
		{"histórico", []string{"tenho histórico de asma na família"}, "asma na família"},
		{"condition", []string{"eu sou diabético"}, "sou diabético"},
		{"medication", []string{"tomo remédio para pressão"}, "tomo remédio para pressão"},
		{"allergy", []string{"tenho alergia a dipirona"}, "alergia a dipirona"},
		{"none", []string{"estou com febre"}, DefaultMedicalHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMedicalHistory(conversation(tt.user...)))
		})
	}
}

func TestExtractRecommendation(t *testing.T) {
	assert.Equal(t, "repouso e hidratação",
		ExtractRecommendation("Recomendo repouso e hidratação. Até logo.", ""))
	assert.Equal(t, "procure um clínico geral",
		ExtractRecommendation("Por favor, procure um clínico geral.", ""))
	assert.Equal(t, "especialista em cardiologia",
		ExtractRecommendation("Você será atendido por um especialista em cardiologia", "especialista em cardiologia"))
	assert.Equal(t, DefaultRecommendation, ExtractRecommendation("Obrigado.", ""))
}

func TestExtractRecord(t *testing.T) {
	final := "Recomendo repouso. Você precisa de um especialista em pneumologia."
	turns := conversation("Meu nome é Maria", "Estou com tosse seca", "tenho histórico de bronquite")
	turns = append(turns, store.Turn{Role: store.RoleAssistant, Content: final})

	a := AnalyzeReply(final)
	require.True(t, a.IsConsultationEnding)

	rec := ExtractRecord(turns, a, final)

	assert.Equal(t, "Maria", rec.PatientName)
	assert.Equal(t, "tosse seca", rec.Symptoms)
	assert.Equal(t, "bronquite", rec.MedicalHistory)
	assert.Equal(t, "repouso", rec.Recommendation)
	assert.Equal(t, "especialista em pneumologia", rec.SpecialtyReferral)
	assert.False(t, rec.EmergencyReferral)
	assert.Equal(t, a.Summary, rec.Summary)
	assert.Equal(t, turns, rec.ConversationHistory)
	assert.Equal(t, final, rec.ConversationHistory[len(rec.ConversationHistory)-1].Content)

	// The record must satisfy store validation as-is.
	_, err := store.Prepare(rec, rec.ConsultationDate)
	assert.NoError(t, err)
}
