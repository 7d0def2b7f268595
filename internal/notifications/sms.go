package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// SMSConfig holds configuration for SMS notifications via Twilio
type SMSConfig struct {
	AccountSID   string // Twilio Account SID
	AuthToken    string // Twilio Auth Token
	SenderNumber string // Twilio phone number to send from (E.164 format)
}

// SMSClient sends SMS notifications via Twilio Programmable Messaging
type SMSClient struct {
	accountSID   string
	authToken    string
	senderNumber string
	apiBase      string
	logger       *slog.Logger
	httpClient   *http.Client
}

// NewSMSClient creates a new SMS client for sending notifications. It returns
// nil when credentials or the sender number are missing; a nil client is a
// valid no-op.
func NewSMSClient(cfg SMSConfig, logger *slog.Logger) *SMSClient {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.SenderNumber == "" {
		logger.Info("SMS: missing Twilio configuration, SMS notifications disabled")
		return nil
	}

	logger.Info("SMS: client initialized", "sender", cfg.SenderNumber)

	return &SMSClient{
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		senderNumber: cfg.SenderNumber,
		apiBase:      twilioAPIBase,
		logger:       logger,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// twilioMessageResponse represents a Twilio Messages API response
type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    int    `json:"code,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

// SendSMS sends an SMS message to the specified phone number
func (c *SMSClient) SendSMS(ctx context.Context, to, body string) error {
	if c == nil {
		return nil
	}

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.apiBase, c.accountSID)

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", c.senderNumber)
	data.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	var msgResp twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Twilio API error: %d - %s", msgResp.ErrorCode, msgResp.ErrorMessage)
	}

	c.logger.Debug("SMS: sent", "to", to, "sid", msgResp.SID, "status", msgResp.Status)
	return nil
}

// EmergencySMSBody is the text sent to on-call phones.
func EmergencySMSBody(a Alert) string {
	var b strings.Builder
	b.WriteString("TRIAGEM EMERGÊNCIA: ")
	b.WriteString(orDash(a.PatientName))
	if a.Symptoms != "" {
		b.WriteString(" | Sintomas: ")
		b.WriteString(truncate(a.Symptoms, 80))
	}
	if a.SpecialtyReferral != "" {
		b.WriteString(" | ")
		b.WriteString(truncate(a.SpecialtyReferral, 60))
	}
	b.WriteString(" | Consulta ")
	b.WriteString(a.ConsultationID)
	return b.String()
}
