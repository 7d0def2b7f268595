package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Alert describes a consultation that ended with an emergency referral.
type Alert struct {
	ConsultationID    string
	RecordID          string
	PatientName       string
	Symptoms          string
	SpecialtyReferral string
	Summary           string
	At                time.Time
}

// EmergencyNotifier is implemented by Dispatcher and by test doubles.
type EmergencyNotifier interface {
	NotifyEmergency(ctx context.Context, a Alert)
}

// DispatcherConfig lists the optional channels and their recipients.
type DispatcherConfig struct {
	Discord      *Discord
	SMS          *SMSClient
	APNs         *APNsClient
	Phones       []string // on-call phones for SMS
	DeviceTokens []string // clinician devices for APNs
	Timeout      time.Duration
}

// Dispatcher fans an alert out to every configured channel. Delivery is best
// effort: failures are logged and never retried.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Dispatcher{cfg: cfg, logger: logger}
}

// Enabled reports whether at least one channel can deliver.
func (d *Dispatcher) Enabled() bool {
	if d == nil {
		return false
	}
	return d.cfg.Discord.Enabled() ||
		(d.cfg.SMS != nil && len(d.cfg.Phones) > 0) ||
		(d.cfg.APNs != nil && len(d.cfg.DeviceTokens) > 0)
}

// NotifyEmergency returns immediately; deliveries run in the background and
// outlive the caller's context.
func (d *Dispatcher) NotifyEmergency(ctx context.Context, a Alert) {
	if !d.Enabled() {
		return
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}

	base := context.WithoutCancel(ctx)
	log := d.logger.With("consultation_id", a.ConsultationID)

	d.goSend(base, log, "discord", func(ctx context.Context) error {
		return d.cfg.Discord.NotifyEmergency(ctx, a)
	}, d.cfg.Discord.Enabled())

	if d.cfg.SMS != nil {
		body := EmergencySMSBody(a)
		for _, phone := range d.cfg.Phones {
			d.goSend(base, log.With("to", phone), "sms", func(ctx context.Context) error {
				return d.cfg.SMS.SendSMS(ctx, phone, body)
			}, true)
		}
	}

	if d.cfg.APNs != nil {
		for _, tok := range d.cfg.DeviceTokens {
			d.goSend(base, log.With("device", shortToken(tok)), "apns", func(context.Context) error {
				return d.cfg.APNs.SendEmergencyNotification(tok, a)
			}, true)
		}
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) goSend(base context.Context, log *slog.Logger, channel string, send func(context.Context) error, enabled bool) {
	if !enabled {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(base, d.cfg.Timeout)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Error("emergency notification failed", "channel", channel, "error", err)
			return
		}
		log.Info("emergency notification sent", "channel", channel)
	}()
}
