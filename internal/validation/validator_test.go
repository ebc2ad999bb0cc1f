package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorCollectsFieldErrors(t *testing.T) {
	v := New()
	v.Required("recipientUsername", "  ")
	v.Email("email", "not-an-email")
	v.Currency("currency", "RUPIAH")
	amount := v.PositiveAmount("amount", "-1")

	require.False(t, v.Valid())
	assert.True(t, amount.IsNegative())

	err := v.Err()
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 4)
	assert.Equal(t, "must be greater than zero", verr.Fields["amount"])
	assert.Contains(t, err.Error(), "amount must be greater than zero")
}

func TestValidatorKeepsFirstMessage(t *testing.T) {
	v := New()
	v.PositiveAmount("amount", "abc")
	v.Check(false, "amount", "second")
	assert.Equal(t, "must be a decimal number", v.Errors["amount"])
}

func TestPositiveAmountRejectsOutOfRange(t *testing.T) {
	for _, raw := range []string{"1e50000000", "1e-50000000", "123456789012345678901"} {
		v := New()
		amount := v.PositiveAmount("amount", raw)
		assert.Equal(t, "must be a decimal number", v.Errors["amount"], raw)
		assert.True(t, amount.IsZero(), raw)
	}
}

func TestValidatorAcceptsValidInput(t *testing.T) {
	v := New()
	v.Required("name", "Alice")
	v.Email("email", "alice@example.com")
	v.Handle("username", "alice_01")
	v.Currency("currency", "")
	v.Currency("currency", "idr")
	amount := v.PositiveAmount("amount", "12.50")

	require.NoError(t, v.Err())
	assert.Equal(t, "12.5", amount.String())
}

func TestHandle(t *testing.T) {
	tests := []struct {
		handle string
		valid  bool
	}{
		{"bob", true},
		{"bob.smith-2", true},
		{"ab", false},
		{"has space", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			v := New()
			v.Handle("username", tt.handle)
			assert.Equal(t, tt.valid, v.Valid())
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int{
		"":     0,
		"abc":  0,
		"-4":   0,
		"0":    0,
		"7":    7,
		" 15 ": 15,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseLimit(raw), "raw=%q", raw)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
		{"date only", "2024-02-03", time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"rfc3339 with offset", "2024-02-03T10:00:00+07:00", time.Date(2024, 2, 3, 3, 0, 0, 0, time.UTC)},
		{"local datetime", "2024-02-03T10:30", time.Date(2024, 2, 3, 10, 30, 0, 0, time.UTC)},
		{"unix millis", "1706918400000", time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(ParseDate(tt.raw)), "got %s", ParseDate(tt.raw))
		})
	}
}
