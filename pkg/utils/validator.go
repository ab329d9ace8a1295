package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nonDigits    = regexp.MustCompile(`\D`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// NormalizeCPF strips punctuation from a CPF, keeping only digits
func NormalizeCPF(cpf string) string {
	return nonDigits.ReplaceAllString(cpf, "")
}

// ValidateCPF checks a Brazilian CPF: 11 digits, not all equal, with valid check digits.
// Punctuation ("123.456.789-09") is accepted.
func ValidateCPF(cpf string) error {
	digits := NormalizeCPF(cpf)
	if len(digits) != 11 {
		return fmt.Errorf("CPF must have 11 digits: %s", cpf)
	}
	if strings.Count(digits, digits[:1]) == 11 {
		return fmt.Errorf("invalid CPF: %s", cpf)
	}

	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != int(digits[n]-'0') {
			return fmt.Errorf("invalid CPF check digit: %s", cpf)
		}
	}
	return nil
}

// ValidatePhone accepts Brazilian phone numbers with 10 or 11 digits, optionally prefixed by country code 55
func ValidatePhone(phone string) error {
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "55") && len(digits) > 11 {
		digits = digits[2:]
	}
	if len(digits) != 10 && len(digits) != 11 {
		return fmt.Errorf("invalid phone number: %s", phone)
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
