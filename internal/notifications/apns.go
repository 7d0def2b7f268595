package notifications

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsConfig holds configuration for Apple Push Notification service
type APNsConfig struct {
	KeyPath    string // Path to .p8 key file
	KeyID      string // Key ID from Apple Developer Portal
	TeamID     string // Team ID from Apple Developer Portal
	BundleID   string // Clinician app bundle ID
	Production bool   // Use production environment
}

// pusher is the part of apns2.Client we use.
type pusher interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// APNsClient sends push notifications via Apple Push Notification service
type APNsClient struct {
	client   pusher
	bundleID string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewAPNsClient creates a new APNs client. It returns nil, nil when APNs is
// not configured.
func NewAPNsClient(cfg APNsConfig, logger *slog.Logger) (*APNsClient, error) {
	if cfg.KeyPath == "" || cfg.KeyID == "" || cfg.TeamID == "" || cfg.BundleID == "" {
		logger.Info("APNs: missing configuration, push notifications disabled")
		return nil, nil
	}

	// Load the .p8 key
	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs key file: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode APNs key PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs key: %w", err)
	}

	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("APNs key is not an ECDSA private key")
	}

	authToken := &token.Token{
		AuthKey: ecdsaKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	var client *apns2.Client
	if cfg.Production {
		client = apns2.NewTokenClient(authToken).Production()
	} else {
		client = apns2.NewTokenClient(authToken).Development()
	}

	logger.Info("APNs: client initialized", "production", cfg.Production, "bundle", cfg.BundleID)

	return &APNsClient{
		client:   client,
		bundleID: cfg.BundleID,
		logger:   logger,
	}, nil
}

// EmergencyNotification builds the push sent to clinician devices.
func (c *APNsClient) EmergencyNotification(deviceToken string, a Alert) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle("Emergência na triagem").
		AlertBody(fmt.Sprintf("%s: %s", orDash(a.PatientName), truncate(orDash(a.Symptoms), 120))).
		Sound("default").
		Custom("consultation_id", a.ConsultationID).
		Custom("record_id", a.RecordID)

	return &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.bundleID,
		Payload:     p,
		Priority:    apns2.PriorityHigh,
		Expiration:  a.At.Add(1 * time.Hour),
	}
}

// SendEmergencyNotification pushes an emergency referral to one device.
func (c *APNsClient) SendEmergencyNotification(deviceToken string, a Alert) error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.client.Push(c.EmergencyNotification(deviceToken, a))
	if err != nil {
		return fmt.Errorf("APNs push failed: %w", err)
	}

	if res.StatusCode != 200 {
		return fmt.Errorf("APNs rejected notification (status=%d): %s", res.StatusCode, res.Reason)
	}

	c.logger.Debug("APNs: emergency notification sent", "device", shortToken(deviceToken))
	return nil
}

func shortToken(t string) string {
	if len(t) > 16 {
		return t[:16] + "..."
	}
	return t
}
