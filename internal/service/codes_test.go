package service

import (
	"strings"
	"testing"
)

func TestGenerateNumericCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateNumericCode(otpCodeLength)
		if err != nil {
			t.Fatalf("GenerateNumericCode fallo: %v", err)
		}
		if len(code) != otpCodeLength {
			t.Fatalf("codigo con largo %d, esperaba %d: %q", len(code), otpCodeLength, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("codigo con caracter no numerico: %q", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("200 codigos generados sin variacion")
	}
}

func TestHashCodeDeterministic(t *testing.T) {
	a := HashCode("482913")
	b := HashCode("482913")
	if a != b {
		t.Fatalf("el hash del mismo codigo deberia ser estable: %q vs %q", a, b)
	}
	if a == HashCode("482914") {
		t.Fatalf("codigos distintos no deberian colisionar trivialmente")
	}
	if len(a) != 64 {
		t.Fatalf("esperaba un hex sha256 de 64 caracteres, obtuve %d", len(a))
	}
}

func TestHashSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("un-refresh-token-largo")
	if err != nil {
		t.Fatalf("HashSecret fallo: %v", err)
	}
	if !strings.Contains(hash, ":") {
		t.Fatalf("esperaba formato sal:digesto, obtuve %q", hash)
	}
	if !VerifySecret("un-refresh-token-largo", hash) {
		t.Fatalf("el secreto original deberia verificar")
	}
	if VerifySecret("otro-secreto", hash) {
		t.Fatalf("un secreto distinto no deberia verificar")
	}

	again, err := HashSecret("un-refresh-token-largo")
	if err != nil {
		t.Fatalf("HashSecret fallo: %v", err)
	}
	if again == hash {
		t.Fatalf("dos hashes del mismo secreto deberian diferir por la sal")
	}
}

func TestVerifySecretMalformed(t *testing.T) {
	cases := []string{"", "sindospartes", "no-base64!:tampoco!", "YWJj"}
	for _, stored := range cases {
		if VerifySecret("lo-que-sea", stored) {
			t.Fatalf("hash malformado %q no deberia verificar", stored)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := normalizeEmail("  Ana@Example.COM "); got != "ana@example.com" {
		t.Fatalf("normalizeEmail devolvio %q", got)
	}
}

func TestIsValidOTPCode(t *testing.T) {
	valid := []string{"000000", "123456", "999999"}
	for _, c := range valid {
		if !isValidOTPCode(c) {
			t.Fatalf("%q deberia ser valido", c)
		}
	}
	invalid := []string{"", "12345", "1234567", "12a456", "12 456"}
	for _, c := range invalid {
		if isValidOTPCode(c) {
			t.Fatalf("%q no deberia ser valido", c)
		}
	}
}
