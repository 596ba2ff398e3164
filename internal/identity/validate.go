package identity

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/metlabs/metlabs_back/internal/apperr"
)

const (
	minNameLength        = 2
	minPasswordLength    = 8
	minPhoneLength       = 9
	minNationalityLength = 2
	minAge               = 18
)

func validateProfile(p Profile, now time.Time) error {
	if len(strings.TrimSpace(p.Name)) < minNameLength {
		return apperr.Validation("name must be at least 2 characters")
	}
	if err := validateEmail(p.Email); err != nil {
		return err
	}
	if len(strings.TrimSpace(p.Phone)) < minPhoneLength {
		return apperr.Validation("phone must be at least 9 characters")
	}
	if len(strings.TrimSpace(p.Nationality)) < minNationalityLength {
		return apperr.Validation("nationality must be at least 2 characters")
	}
	if strings.TrimSpace(p.Sex) == "" {
		return apperr.Validation("sex is required")
	}
	if p.BirthDate.IsZero() || p.BirthDate.After(now) {
		return apperr.Validation("birth date is invalid")
	}
	if ageAt(p.BirthDate, now) < minAge {
		return apperr.Validation("user must be at least 18 years old")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email is invalid")
	}
	return nil
}

// ValidatePassword enforces the password policy: at least eight characters
// with a lowercase letter, an uppercase letter, a digit and a symbol.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation("password must be at least 8 characters")
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return apperr.Validation("password must contain a lowercase letter, an uppercase letter, a digit and a special character")
	}
	return nil
}

func ageAt(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}
