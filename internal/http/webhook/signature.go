package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries an HS256 token whose body_sha256 claim is the hex
// digest of the request body.
const SignatureHeader = "X-Provider-Signature"

var (
	ErrMissingSignature = errors.New("provider signature required")
	ErrInvalidSignature = errors.New("invalid provider signature")
)

type signatureClaims struct {
	BodySHA256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	maxAge time.Duration
}

// NewVerifier accepts tokens issued at most maxAge ago.
func NewVerifier(secret string, maxAge time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), maxAge: maxAge}
}

func (v *Verifier) Verify(token string, body []byte) error {
	if token == "" {
		return ErrMissingSignature
	}

	var claims signatureClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.IssuedAt == nil {
		return fmt.Errorf("%w: iat is required", ErrInvalidSignature)
	}

	if v.maxAge > 0 && time.Since(claims.IssuedAt.Time) > v.maxAge {
		return fmt.Errorf("%w: token is too old", ErrInvalidSignature)
	}

	if subtle.ConstantTimeCompare([]byte(claims.BodySHA256), []byte(digest(body))) != 1 {
		return fmt.Errorf("%w: body digest mismatch", ErrInvalidSignature)
	}

	return nil
}

// Sign returns the signature header value for body, as the provider sends it.
func Sign(secret string, body []byte, at time.Time) (string, error) {
	claims := signatureClaims{
		BodySHA256: digest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(at),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing webhook: %w", err)
	}

	return token, nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
