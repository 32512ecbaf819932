package payment

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	s, err := NewSigner("secret")
	require.NoError(t, err)

	sig := s.Sign("pi_1", string(OutcomeSuccess), decimal.RequireFromString("10"))
	assert.Len(t, sig, 64)
	assert.True(t, s.Verify("pi_1", "SUCCESS", decimal.RequireFromString("10.00"), sig))
	assert.True(t, s.Verify("pi_1", "SUCCESS", decimal.RequireFromString("10.00"), strings.ToUpper(sig)))

	assert.False(t, s.Verify("pi_1", "SUCCESS", decimal.RequireFromString("10.01"), sig), "tampered amount")
	assert.False(t, s.Verify("pi_1", "SUCCESS", decimal.RequireFromString("10.004"), sig), "sub-cent amount")
	assert.True(t, s.Verify("pi_1", "SUCCESS", decimal.RequireFromString("10.000"), sig))
	assert.False(t, s.Verify("pi_1", "FAILED", decimal.RequireFromString("10.00"), sig), "tampered status")
	assert.False(t, s.Verify("pi_2", "SUCCESS", decimal.RequireFromString("10.00"), sig), "tampered intent")

	other, _ := NewSigner("other")
	assert.False(t, other.Verify("pi_1", "SUCCESS", decimal.RequireFromString("10.00"), sig))
}

func TestIssueSignsPendingIntent(t *testing.T) {
	s, _ := NewSigner("secret")
	in := s.Issue(decimal.RequireFromString("42.5"), "USD", "stripe")

	assert.True(t, strings.HasPrefix(in.ID, "pi_"))
	assert.True(t, s.Verify(in.ID, IntentPending, in.Amount, in.Signature))
	assert.NotEqual(t, in.ID, s.Issue(in.Amount, "USD", "").ID)
}

func TestNewSignerRejectsEmptyKey(t *testing.T) {
	_, err := NewSigner("")
	assert.Error(t, err)
}
