// Package payment holds the minimal signed-intent contract shared by checkout and
// the settlement webhook.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"

	// IntentPending is the status a freshly issued intent is signed with.
	IntentPending = "PENDING"
)

func (o Outcome) Valid() bool { return o == OutcomeSuccess || o == OutcomeFailed }

// Intent is handed to the caller of an ONLINE checkout.
type Intent struct {
	ID        string          `json:"intentId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Provider  string          `json:"provider,omitempty"`
	Signature string          `json:"signature"`
}

func NewIntentID() string { return "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "") }

type Signer struct{ key []byte }

func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, errors.New("payment signing key is empty")
	}
	return &Signer{key: []byte(key)}, nil
}

// Sign renders the amount with two decimals so "10", "10.0" and "10.00" sign alike.
func (s *Signer) Sign(intentID, status string, amount decimal.Decimal) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(intentID + "|" + status + "|" + amount.StringFixed(2)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify rejects amounts finer than a cent, which Sign would otherwise round onto
// a genuine signature.
func (s *Signer) Verify(intentID, status string, amount decimal.Decimal, signature string) bool {
	if !amount.Equal(amount.Round(2)) {
		return false
	}
	expected := s.Sign(intentID, status, amount)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Issue builds a signed PENDING intent for amount.
func (s *Signer) Issue(amount decimal.Decimal, currency, provider string) Intent {
	id := NewIntentID()
	return Intent{
		ID:        id,
		Amount:    amount,
		Currency:  currency,
		Provider:  provider,
		Signature: s.Sign(id, IntentPending, amount),
	}
}
