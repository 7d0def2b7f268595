package triage

import (
	"regexp"
	"strings"

	"github.com/lukasbauer/lucilta/internal/store"
)

// Defaults used when no rule matches.
const (
	DefaultPatientName    = "Não informado"
	DefaultSymptoms       = "Não informado"
	DefaultMedicalHistory = ""
	DefaultRecommendation = "Procurar atendimento com médico especialista."
)

// rule pairs a pattern with the extractor applied to its submatches.
type rule struct {
	pattern *regexp.Regexp
	extract func(m []string) string
}

func group(n int) func([]string) string {
	return func(m []string) string { return m[n] }
}

func whole(m []string) string { return m[0] }

const fragment = `([^.!?\n]+)`

var nameRules = []rule{
	{regexp.MustCompile(`(?i)(?:meu nome é|meu nome e|me chamo|chamo-me|eu sou o|eu sou a|sou o|sou a)\s+([\p{L}'-]+(?:\s+[\p{L}'-]+){0,3})`), group(1)},
	{regexp.MustCompile(`(?i)\bnome\s*(?::|é|e)\s*([\p{L}'-]+(?:\s+[\p{L}'-]+){0,3})`), group(1)},
}

var symptomRules = []rule{
	{regexp.MustCompile(`(?i)\b(?:estou|tô|to|ando) (?:com|sentindo) ` + fragment), group(1)},
	{regexp.MustCompile(`(?i)\b(?:sinto|senti|sentindo) ` + fragment), group(1)},
	{regexp.MustCompile(`(?i)(?:dor|dores) (?:de|na|no|nas|nos|em) ` + fragment), whole},
	{regexp.MustCompile(`(?i)sintomas?[:\s]+` + fragment), group(1)},
	{regexp.MustCompile(`(?i)\btenho ` + fragment), group(1)},
}

var historyRules = []rule{
	{regexp.MustCompile(`(?i)(?:tenho|tive) (?:histórico|historico) (?:de |familiar de )?` + fragment), group(1)},
	{regexp.MustCompile(`(?i)(?:^|\s)(?:sou|é) (?:diabétic[oa]|diabetic[oa]|hipertens[oa]|asmátic[oa]|asmatic[oa])`), whole},
	{regexp.MustCompile(`(?i)(?:já tive|ja tive|já fiz|ja fiz|já operei|ja operei) ` + fragment), whole},
	{regexp.MustCompile(`(?i)(?:tomo|uso) (?:remédios?|remedios?|medicamentos?|medicação) ?` + `([^.!?\n]*)`), whole},
	{regexp.MustCompile(`(?i)alergi(?:a|co|ca) (?:a|ao|à|de) ` + fragment), whole},
}

var recommendationRules = []rule{
	{regexp.MustCompile(`(?i)recomend(?:o|amos|a)[:\s]+([^.]+)`), group(1)},
	{regexp.MustCompile(`(?i)(?:sugiro|oriento)(?: que)? ([^.]+)`), group(1)},
	{regexp.MustCompile(`(?i)(?:procure|procurar) ([^.]+)`), whole},
}

// Words that end a spoken name ("me chamo Ana e estou com febre").
var nameStopWords = map[string]bool{
	"e": true, "tenho": true, "estou": true, "to": true, "tô": true,
	"sinto": true, "com": true, "moro": true, "aqui": true, "anos": true,
}

// firstMatch applies rules in order over texts and returns the first
// non-empty extraction.
func firstMatch(rules []rule, texts []string) (string, bool) {
	for _, r := range rules {
		for _, t := range texts {
			m := r.pattern.FindStringSubmatch(t)
			if m == nil {
				continue
			}
			if v := strings.TrimSpace(r.extract(m)); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func userTexts(turns []store.Turn) []string {
	var out []string
	for _, t := range turns {
		if t.Role == store.RoleUser {
			out = append(out, t.Content)
		}
	}
	return out
}

// ExtractPatientName finds the patient's self-identification across user
// turns. A bare short first answer is taken as the name, since the
// consultation opens by asking for it.
func ExtractPatientName(turns []store.Turn) string {
	texts := userTexts(turns)
	if v, ok := firstMatch(nameRules, texts); ok {
		return cleanName(v)
	}
	if len(texts) > 0 && isBareName(texts[0]) {
		return cleanName(texts[0])
	}
	return DefaultPatientName
}

func ExtractSymptoms(turns []store.Turn) string {
	if v, ok := firstMatch(symptomRules, userTexts(turns)); ok {
		return v
	}
	return DefaultSymptoms
}

func ExtractMedicalHistory(turns []store.Turn) string {
	if v, ok := firstMatch(historyRules, userTexts(turns)); ok {
		return v
	}
	return DefaultMedicalHistory
}

// ExtractRecommendation looks only at the final assistant reply. When nothing
// matches, the referral (if any) stands in for the recommendation.
func ExtractRecommendation(finalReply, referral string) string {
	if v, ok := firstMatch(recommendationRules, []string{finalReply}); ok {
		return v
	}
	if referral != "" {
		return referral
	}
	return DefaultRecommendation
}

// ExtractRecord assembles the record for a finished consultation. turns must
// already include the closing assistant reply.
func ExtractRecord(turns []store.Turn, a Analysis, finalReply string) store.MedicalRecord {
	history := make([]store.Turn, len(turns))
	copy(history, turns)

	summary := a.Summary
	if summary == "" {
		summary = Summarize(finalReply)
	}

	return store.MedicalRecord{
		PatientName:         ExtractPatientName(turns),
		Symptoms:            ExtractSymptoms(turns),
		MedicalHistory:      ExtractMedicalHistory(turns),
		Recommendation:      ExtractRecommendation(finalReply, a.SpecialtyReferral),
		SpecialtyReferral:   a.SpecialtyReferral,
		EmergencyReferral:   a.IsEmergency,
		Summary:             summary,
		ConversationHistory: history,
	}
}

func cleanName(s string) string {
	words := strings.Fields(strings.Trim(s, " ,;:"))
	var kept []string
	for i, w := range words {
		if i > 0 && nameStopWords[strings.ToLower(w)] {
			break
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return DefaultPatientName
	}
	return strings.Join(kept, " ")
}

var bareName = regexp.MustCompile(`^[\p{L}'-]+(?:\s+[\p{L}'-]+){0,3}$`)

func isBareName(s string) bool {
	s = strings.TrimSpace(strings.Trim(s, ".!"))
	if !bareName.MatchString(s) {
		return false
	}
	first := strings.ToLower(strings.Fields(s)[0])
	switch first {
	case "sim", "não", "nao", "oi", "olá", "ola", "bom", "boa", "tenho", "estou":
		return false
	}
	return true
}
