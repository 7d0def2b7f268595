package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *slog.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *slog.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to the Discord webhook.
func (d *Discord) send(ctx context.Context, msg discordMessage) error {
	if !d.Enabled() {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("discord: failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyEmergency posts an emergency referral to the on-call channel.
func (d *Discord) NotifyEmergency(ctx context.Context, a Alert) error {
	fields := []embedField{
		{Name: "Paciente", Value: orDash(a.PatientName), Inline: true},
		{Name: "Consulta", Value: fmt.Sprintf("`%s`", a.ConsultationID), Inline: true},
		{Name: "Sintomas", Value: orDash(a.Symptoms)},
	}
	if a.SpecialtyReferral != "" {
		fields = append(fields, embedField{Name: "Encaminhamento", Value: a.SpecialtyReferral})
	}
	if a.RecordID != "" {
		fields = append(fields, embedField{Name: "Prontuário", Value: fmt.Sprintf("`%s`", a.RecordID), Inline: true})
	}

	msg := discordMessage{
		Content: "@here", // Ping everyone
		Embeds: []discordEmbed{{
			Title:       "Triagem: encaminhamento de emergência",
			Description: truncate(a.Summary, 1500),
			Color:       0xFF0000, // Red
			Fields:      fields,
			Timestamp:   a.At.UTC().Format(time.RFC3339),
		}},
	}
	return d.send(ctx, msg)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
