package validation

import (
	"testing"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

func TestIsValidCPF(t *testing.T) {
	tests := []struct {
		name  string
		cpf   string
		valid bool
	}{
		{name: "valid digits", cpf: "52998224725", valid: true},
		{name: "valid formatted", cpf: "529.982.247-25", valid: true},
		{name: "wrong check digit", cpf: "52998224724", valid: false},
		{name: "repeated digits", cpf: "11111111111", valid: false},
		{name: "too short", cpf: "5299822472", valid: false},
		{name: "letters", cpf: "5299822472a", valid: false},
		{name: "arabic-indic digit", cpf: "٣2345678917", valid: false},
		{name: "fullwidth digits", cpf: "５２９９８２２４７２５", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCPF(tt.cpf); got != tt.valid {
				t.Fatalf("IsValidCPF(%q) = %v, want %v", tt.cpf, got, tt.valid)
			}
		})
	}
}

func TestIsValidCNPJ(t *testing.T) {
	tests := []struct {
		name  string
		cnpj  string
		valid bool
	}{
		{name: "valid digits", cnpj: "11222333000181", valid: true},
		{name: "valid formatted", cnpj: "11.222.333/0001-81", valid: true},
		{name: "wrong check digit", cnpj: "11222333000182", valid: false},
		{name: "repeated digits", cnpj: "00000000000000", valid: false},
		{name: "cpf length", cnpj: "52998224725", valid: false},
		{name: "fullwidth digit", cnpj: "1122233300018１", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCNPJ(tt.cnpj); got != tt.valid {
				t.Fatalf("IsValidCNPJ(%q) = %v, want %v", tt.cnpj, got, tt.valid)
			}
		})
	}
}

func TestIsValidPixKey(t *testing.T) {
	tests := []struct {
		name    string
		keyType model.PixKeyType
		key     string
		valid   bool
	}{
		{name: "cpf", keyType: model.PixKeyCPF, key: "52998224725", valid: true},
		{name: "cnpj", keyType: model.PixKeyCNPJ, key: "11222333000181", valid: true},
		{name: "email", keyType: model.PixKeyEmail, key: "seller@example.com", valid: true},
		{name: "bad email", keyType: model.PixKeyEmail, key: "seller.example.com", valid: false},
		{name: "phone", keyType: model.PixKeyPhone, key: "+5511987654321", valid: true},
		{name: "phone without plus", keyType: model.PixKeyPhone, key: "11987654321", valid: false},
		{name: "random", keyType: model.PixKeyRandom, key: "7d444840-9dc0-11d1-b245-5ffdce74fad2", valid: true},
		{name: "random garbage", keyType: model.PixKeyRandom, key: "not-a-uuid", valid: false},
		{name: "empty", keyType: model.PixKeyEmail, key: "  ", valid: false},
		{name: "unknown type", keyType: "iban", key: "DE89370400440532013000", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPixKey(tt.keyType, tt.key); got != tt.valid {
				t.Fatalf("IsValidPixKey(%q, %q) = %v, want %v", tt.keyType, tt.key, got, tt.valid)
			}
		})
	}
}
