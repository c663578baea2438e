package authkit

import (
	"regexp"
	"strings"
	"unicode"
)

// Validation runs locally and before any remote call. Failures are
// reported per field through FieldErrors and never consume a remote
// attempt budget.

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z]{2,}$`)
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	otpCodePattern = regexp.MustCompile(`^[0-9]{4,6}$`)
)

// passwordSymbols is the accepted special-character set.
const passwordSymbols = "!@#$%^&*?_- "

// Contact is a parsed registration/sign-in contact: exactly one of Phone
// or Email is set.
type Contact struct {
	Phone string
	Email string
}

// ParseContact classifies a raw contact string as phone or email. The
// returned FieldError is keyed "contact".
func ParseContact(raw string) (Contact, *FieldError) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Contact{}, &FieldError{Field: "contact", Reason: "required"}
	case phonePattern.MatchString(raw):
		return Contact{Phone: raw}, nil
	case emailPattern.MatchString(raw):
		return Contact{Email: raw}, nil
	default:
		return Contact{}, &FieldError{Field: "contact", Reason: "must be a valid email address or international phone number"}
	}
}

// ValidateName checks a first/last name: alphabetic, length at least 2.
func ValidateName(field, value string) *FieldError {
	if !namePattern.MatchString(strings.TrimSpace(value)) {
		return &FieldError{Field: field, Reason: "must be alphabetic with at least 2 letters"}
	}
	return nil
}

// ValidateNewPassword enforces the composed password rule: minimum length
// plus at least one upper-case letter, lower-case letter, digit, and
// symbol. The confirmation must match exactly.
func ValidateNewPassword(password, confirm string, minLength int) FieldErrors {
	var errs FieldErrors
	if minLength <= 0 {
		minLength = defaultConfig().PasswordMinLength
	}

	if len(password) < minLength {
		errs = append(errs, FieldError{Field: "password", Reason: "too short"})
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		errs = append(errs, FieldError{Field: "password", Reason: "must mix upper and lower case letters, digits, and a symbol"})
	}
	if password != confirm {
		errs = append(errs, FieldError{Field: "confirm", Reason: "passwords do not match"})
	}
	return errs
}

// ValidateIdentity checks the registration identity step as a whole,
// accumulating one FieldError per failing field.
func ValidateIdentity(firstName, lastName, contact string) FieldErrors {
	var errs FieldErrors
	if ferr := ValidateName("first_name", firstName); ferr != nil {
		errs = append(errs, *ferr)
	}
	if ferr := ValidateName("last_name", lastName); ferr != nil {
		errs = append(errs, *ferr)
	}
	if _, ferr := ParseContact(contact); ferr != nil {
		errs = append(errs, *ferr)
	}
	return errs
}
