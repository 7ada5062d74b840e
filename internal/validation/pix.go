// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

var validate = validator.New()

// Struct проверяет запись по тегам validate.
func Struct(v any) error {
	return validate.Struct(v)
}

// IsValidPixKey проверяет, что ключ PIX соответствует своему типу.
func IsValidPixKey(keyType model.PixKeyType, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	switch keyType {
	case model.PixKeyCPF:
		return IsValidCPF(key)
	case model.PixKeyCNPJ:
		return IsValidCNPJ(key)
	case model.PixKeyEmail:
		return validate.Var(key, "email") == nil
	case model.PixKeyPhone:
		return validate.Var(key, "e164") == nil
	case model.PixKeyRandom:
		return validate.Var(key, "uuid") == nil
	default:
		return false
	}
}

// IsValidCPF проверяет контрольные цифры CPF. Допускается форматирование точками и дефисом.
func IsValidCPF(cpf string) bool {
	digits, ok := onlyDigits(cpf, 11)
	if !ok || allSame(digits) {
		return false
	}

	return checkDigit(digits[:9], []int{10, 9, 8, 7, 6, 5, 4, 3, 2}) == digits[9] &&
		checkDigit(digits[:10], []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}) == digits[10]
}

// IsValidCNPJ проверяет контрольные цифры CNPJ. Допускается форматирование точками, косой чертой и дефисом.
func IsValidCNPJ(cnpj string) bool {
	digits, ok := onlyDigits(cnpj, 14)
	if !ok || allSame(digits) {
		return false
	}

	return checkDigit(digits[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == digits[12] &&
		checkDigit(digits[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == digits[13]
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}

	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func onlyDigits(s string, n int) ([]int, bool) {
	digits := make([]int, 0, n)
	for _, ch := range s {
		switch {
		case '0' <= ch && ch <= '9':
			digits = append(digits, int(ch-'0'))
		case ch == '.' || ch == '-' || ch == '/':
		default:
			return nil, false
		}
	}
	return digits, len(digits) == n
}

func allSame(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
