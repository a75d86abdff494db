package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"
	"unicode"
)

const otpCodeLength = 6

// GenerateNumericCode genera un codigo numerico de longitud fija, uniforme en
// [0, 10^length) via crypto/rand. El padding con ceros conserva codigos con
// ceros a la izquierda.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		length = otpCodeLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	code := n.String()
	if pad := length - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code, nil
}

// HashCode calcula un hash determinista del codigo OTP. Determinista a
// proposito: el store efimero lo compara dentro de un script atomico.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// HashSecret genera un hash con sal para secretos largos (refresh tokens).
func HashSecret(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	sum := sha256.Sum256([]byte(saltStr + ":" + secret))
	return saltStr + ":" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// VerifySecret compara un secreto contra un hash con sal en tiempo constante.
func VerifySecret(secret, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}
	sum := sha256.Sum256([]byte(parts[0] + ":" + secret))
	computed := base64.StdEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(parts[1])) == 1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidOTPCode(code string) bool {
	if len(code) != otpCodeLength {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
