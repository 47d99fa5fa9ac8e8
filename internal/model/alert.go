package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownAlertType is returned for comparison kinds other than percent/price.
	ErrUnknownAlertType = errors.New("unknown alert type")
	// ErrInvalidThreshold is returned for non-positive thresholds.
	ErrInvalidThreshold = errors.New("threshold must be positive")
	// ErrUnknownLanguage is returned for unsupported interface languages.
	ErrUnknownLanguage = errors.New("unknown language")
)

// AlertType selects how a rule compares the current rate with the baseline.
type AlertType string

// Supported alert types.
const (
	// AlertPercent fires on a relative change of at least Threshold percent.
	AlertPercent AlertType = "percent"
	// AlertPrice fires on an absolute change of at least Threshold UAH.
	AlertPrice AlertType = "price"
)

// ParseAlertType accepts a case-insensitive alert type.
func ParseAlertType(s string) (AlertType, error) {
	switch AlertType(strings.ToLower(strings.TrimSpace(s))) {
	case AlertPercent:
		return AlertPercent, nil
	case AlertPrice:
		return AlertPrice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlertType, s)
}

// AlertRule is a user's subscription to rate movements of one currency.
type AlertRule struct {
	ID        int64
	UserID    int64
	Currency  Currency
	Type      AlertType
	Threshold decimal.Decimal
	Active    bool
	CreatedAt time.Time
}

// Validate checks the user-supplied fields of a new rule.
func (r AlertRule) Validate() error {
	if _, err := ParseCurrency(string(r.Currency)); err != nil {
		return err
	}
	if _, err := ParseAlertType(string(r.Type)); err != nil {
		return err
	}
	if !r.Threshold.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidThreshold, r.Threshold)
	}
	return nil
}

// Language is the user's interface language.
type Language string

// Supported languages. LangUK is the default for users without settings.
const (
	LangUK Language = "uk"
	LangRU Language = "ru"
)

// ParseLanguage accepts a case-insensitive language code.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LangUK:
		return LangUK, nil
	case LangRU:
		return LangRU, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

// UserSettings holds per-user preferences.
type UserSettings struct {
	UserID    int64
	Language  Language
	UpdatedAt time.Time
}
