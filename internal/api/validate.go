package api

import (
	"regexp"
	"unicode/utf8"
)

// maxNameLen is the maximum length for name fields.
const maxNameLen = 200

// maxPasswordLen is the maximum length for passwords.
const maxPasswordLen = 256

// phoneRe validates E.164-style phone numbers: optional +, 7-15 digits.
var phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// last4Re validates the last four digits of an account number.
var last4Re = regexp.MustCompile(`^\d{4}$`)

// postalRe validates postal codes: alphanumerics, spaces and hyphens.
var postalRe = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z -]{2,9}$`)

// emailRe is a loose email shape check; deliverability is the SMTP
// server's problem.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen runes.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validatePhone checks that a string is an E.164-style phone number.
func validatePhone(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !phoneRe.MatchString(value) {
		return field + " is not a valid phone number"
	}
	return ""
}

// validateLast4 checks the last-four-digits field of an account number.
func validateLast4(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !last4Re.MatchString(value) {
		return field + " must be exactly 4 digits"
	}
	return ""
}

// validatePostalCode checks a postal code field.
func validatePostalCode(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !postalRe.MatchString(value) {
		return field + " is not a valid postal code"
	}
	return ""
}

// validateEmail checks an optional email address field.
func validateEmail(field, value string) string {
	if value == "" {
		return ""
	}
	if msg := validateStringLen(field, value, maxNameLen); msg != "" {
		return msg
	}
	if !emailRe.MatchString(value) {
		return field + " is not a valid email address"
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
