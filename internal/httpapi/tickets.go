package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const ticketAudience = "consultation-ws"

var (
	ErrTicketInvalid = errors.New("invalid session ticket")
	ErrTicketReused  = errors.New("session ticket already used")
)

// TicketClaims identify one consultation a WebSocket may join.
type TicketClaims struct {
	jwt.RegisteredClaims
	ConsultationID string `json:"consultation_id"`
}

// Tickets issues and redeems short-lived, single-use HS256 session tickets.
// Redeemed ticket ids are remembered until they would have expired anyway.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	used   *cache.Cache
	now    func() time.Time
}

func NewTickets(secret string, ttl time.Duration) *Tickets {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Tickets{
		secret: []byte(secret),
		ttl:    ttl,
		used:   cache.New(ttl, 2*ttl),
		now:    time.Now,
	}
}

// Issue signs a ticket for the consultation.
func (t *Tickets) Issue(consultationID string) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   consultationID,
			Audience:  jwt.ClaimStrings{ticketAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		ConsultationID: consultationID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, expiresAt, nil
}

// Redeem validates the ticket and marks it used. It returns the
// consultation id the ticket was issued for.
func (t *Tickets) Redeem(token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(ticketAudience),
		jwt.WithTimeFunc(t.now),
	)

	var claims TicketClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}
	if claims.ID == "" || claims.ConsultationID == "" {
		return "", ErrTicketInvalid
	}

	// Add fails when the id is already present.
	if err := t.used.Add(claims.ID, struct{}{}, t.ttl); err != nil {
		return "", ErrTicketReused
	}
	return claims.ConsultationID, nil
}
