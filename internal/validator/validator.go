package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
)

// RewardCodePrefix marks a reward code. Routing on it is case-sensitive;
// a lowercase "reward-" code is still accepted but resolved as a customer code.
const RewardCodePrefix = "REWARD-"

var acceptedCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^DP-CUST-`),
	regexp.MustCompile(`(?i)^CUST-`),
	regexp.MustCompile(`(?i)^REWARD-`),
	regexp.MustCompile(`(?i)^[A-Z0-9]{8,}$`),
}

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Register custom "notblank" validator - rejects whitespace-only strings
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// Validate decimal amounts as floats so numeric tags (gte, lte) apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// IsValidScanCode reports whether raw looks like a code the backend can
// resolve. It never performs I/O.
func IsValidScanCode(raw string) bool {
	code := strings.TrimSpace(raw)
	if code == "" {
		return false
	}
	for _, p := range acceptedCodePatterns {
		if p.MatchString(code) {
			return true
		}
	}
	return false
}

// KindOf classifies a scanned code. Codes starting with RewardCodePrefix are
// reward codes; every other accepted shape is treated as a customer code.
func KindOf(raw string) model.CodeKind {
	if !IsValidScanCode(raw) {
		return model.CodeKindInvalid
	}
	if strings.HasPrefix(strings.TrimSpace(raw), RewardCodePrefix) {
		return model.CodeKindReward
	}
	return model.CodeKindCustomer
}
