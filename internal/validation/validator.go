package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/walletledger/internal/money"
)

var (
	emailRegex    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	handleRegex   = regexp.MustCompile(`^[A-Za-z0-9._-]{3,32}$`)
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// Error carries per-field messages for a rejected request.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator collects field errors.
type Validator struct {
	Errors map[string]string
}

// New creates a new validator
func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid reports whether no errors were recorded.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError records the first message for a field.
func (v *Validator) AddError(field, message string) {
	if _, exists := v.Errors[field]; !exists {
		v.Errors[field] = message
	}
}

// Check adds an error if the condition is false
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.AddError(field, message)
	}
}

// Err returns nil when valid, otherwise a *Error.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	fields := make(map[string]string, len(v.Errors))
	for k, msg := range v.Errors {
		fields[k] = msg
	}
	return &Error{Fields: fields}
}

// Required checks that a string is not blank.
func (v *Validator) Required(field, value string) {
	v.Check(strings.TrimSpace(value) != "", field, "must not be empty")
}

// Email validates email format
func (v *Validator) Email(field, email string) {
	v.Check(emailRegex.MatchString(strings.TrimSpace(email)), field, "must be a valid email address")
}

// Handle validates a username.
func (v *Validator) Handle(field, handle string) {
	v.Check(handleRegex.MatchString(strings.TrimSpace(handle)), field, "must be 3-32 letters, digits, '.', '_' or '-'")
}

// Currency accepts an empty code (caller default) or a three-letter code.
func (v *Validator) Currency(field, code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	v.Check(currencyRegex.MatchString(code), field, "must be a three-letter currency code")
}

// PositiveAmount parses a decimal string and requires it to be > 0.
func (v *Validator) PositiveAmount(field, raw string) money.Amount {
	amount, err := money.Parse(raw)
	if err != nil {
		v.AddError(field, "must be a decimal number")
		return money.Zero()
	}
	v.Check(amount.IsPositive(), field, "must be greater than zero")
	return amount
}

// ParseLimit reads an optional positive integer. Missing, malformed and
// non-positive values yield 0, which services map to their default.
func ParseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a date query parameter leniently. Unparseable input is
// ignored and reported as the zero time, meaning "unbounded".
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}
