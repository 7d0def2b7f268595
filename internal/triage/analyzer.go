// Package triage inspects assistant replies to decide when a consultation is
// over and turns the finished conversation into a medical record.
package triage

import (
	"regexp"
	"strings"
)

// Analysis is derived from a single assistant reply.
type Analysis struct {
	IsConsultationEnding bool   `json:"isConsultationEnding"`
	SpecialtyReferral    string `json:"specialtyReferral"`
	IsEmergency          bool   `json:"isEmergency"`
	Summary              string `json:"summary"`
}

const letters = `a-zçáàâãéèêíìîóòôõúùû`

// Ordered; the first match wins.
var specialtyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)encaminh[a-z]+ (para|ao|à) ([` + letters + `\s]+)(ista)`),
	regexp.MustCompile(`(?i)consult[a-z]+ com ([` + letters + `\s]+)(ista)`),
	regexp.MustCompile(`(?i)especialista em ([` + letters + `\s]+)`),
}

var emergencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`192`),
	regexp.MustCompile(`(?i)emergência`),
	regexp.MustCompile(`(?i)urgência`),
	regexp.MustCompile(`(?i)samu`),
	regexp.MustCompile(`(?i)imediatamente`),
	regexp.MustCompile(`(?i)hospital`),
	regexp.MustCompile(`(?i)pronto[\s-]socorro`),
	regexp.MustCompile(`(?i)pronto[\s-]atendimento`),
	regexp.MustCompile(`(?i)\bupa\b`),
}

var (
	summarySymptoms       = regexp.MustCompile(`(?i)sintomas?[:\s]+([^.]+)`)
	summaryRecommendation = regexp.MustCompile(`(?i)recomend(?:o|amos|a)[:\s]+([^.]+)`)
	summaryReferral       = regexp.MustCompile(`(?i)encaminh[a-z]+ [^.]+`)
)

const summaryHeader = "Resumo da Consulta:\n\n"

// AnalyzeReply classifies one assistant reply. It performs no I/O and always
// returns the same result for the same input.
func AnalyzeReply(reply string) Analysis {
	var a Analysis

	for _, p := range specialtyPatterns {
		if m := p.FindString(reply); m != "" {
			a.SpecialtyReferral = strings.TrimSpace(m)
			a.IsConsultationEnding = true
			break
		}
	}

	for _, p := range emergencyPatterns {
		if p.MatchString(reply) {
			a.IsEmergency = true
			a.IsConsultationEnding = true
			break
		}
	}

	if a.IsConsultationEnding {
		a.Summary = Summarize(reply)
	}
	return a
}

// Summarize builds the structured consultation summary from a closing reply.
// Labeled fragments are extracted independently; when none is found the
// whole reply is kept as an observation.
func Summarize(reply string) string {
	var b strings.Builder
	b.WriteString(summaryHeader)

	if m := summarySymptoms.FindStringSubmatch(reply); m != nil {
		b.WriteString("Sintomas: " + strings.TrimSpace(m[1]) + "\n\n")
	}
	if m := summaryRecommendation.FindStringSubmatch(reply); m != nil {
		b.WriteString("Recomendação: " + strings.TrimSpace(m[1]) + "\n\n")
	}
	if strings.Contains(reply, "encaminh") {
		if m := summaryReferral.FindString(reply); m != "" {
			b.WriteString("Encaminhamento: " + strings.TrimSpace(m) + "\n\n")
		}
	}

	if b.Len() == len(summaryHeader) {
		b.WriteString("Observações: " + reply + "\n\n")
	}
	return b.String()
}
