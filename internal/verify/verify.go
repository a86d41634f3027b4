// Package verify signs and checks the tokens mailed to confirm an email
// address and the bearer tokens used by API sessions.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
)

const (
	// EmailAudience scopes email verification tokens.
	EmailAudience = "verify-email"
	// SessionAudience scopes API session tokens.
	SessionAudience = "session"

	// DefaultEmailExpiry is how long a verification link stays valid.
	DefaultEmailExpiry = 24 * time.Hour
	// DefaultSessionExpiry is how long a session token stays valid.
	DefaultSessionExpiry = 30 * 24 * time.Hour

	msgInvalidEmailToken = "Email verification code is not valid or has expired."
)

var (
	errEmptySecret = errors.New("verify: empty secret")
	errBadPayload  = errors.New("verify: malformed payload")
)

// emailClaims carries the [user_pk, email] pair.
type emailClaims struct {
	Payload []json.RawMessage `json:"payload"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 tokens with a shared secret.
type Signer struct {
	secret        []byte
	EmailExpiry   time.Duration
	SessionExpiry time.Duration
	now           func() time.Time
}

// NewSigner constructs a Signer with the default expiries.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	return &Signer{
		secret:        []byte(secret),
		EmailExpiry:   DefaultEmailExpiry,
		SessionExpiry: DefaultSessionExpiry,
		now:           time.Now,
	}, nil
}

func (s *Signer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString(s.secret)
	if errSign != nil {
		return "", fmt.Errorf("verify: sign: %w", errSign)
	}
	return signed, nil
}

func (s *Signer) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *Signer) parser(audience string) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
}

// Token returns a verification token for the user's current email.
func (s *Signer) Token(user *models.User) (string, error) {
	return s.TokenFor(user.ID, user.Email)
}

// TokenFor returns a verification token binding userID to email, which may be
// an address the user is changing to.
func (s *Signer) TokenFor(userID uint64, email string) (string, error) {
	pk, _ := json.Marshal(userID)
	addr, _ := json.Marshal(email)
	now := s.now()
	return s.sign(emailClaims{
		Payload: []json.RawMessage{pk, addr},
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{EmailAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.EmailExpiry)),
		},
	})
}

// Verify checks a verification token and returns the user ID and email it
// was issued for. Any failure is a validation error.
func (s *Signer) Verify(token string) (uint64, string, error) {
	var claims emailClaims
	if _, errParse := s.parser(EmailAudience).ParseWithClaims(token, &claims, s.keyFunc); errParse != nil {
		return 0, "", apperr.FieldError("verify_code", msgInvalidEmailToken)
	}
	userID, email, errPayload := decodePayload(claims.Payload)
	if errPayload != nil {
		return 0, "", apperr.FieldError("verify_code", msgInvalidEmailToken)
	}
	return userID, email, nil
}

func decodePayload(raw []json.RawMessage) (uint64, string, error) {
	if len(raw) != 2 {
		return 0, "", errBadPayload
	}
	var (
		userID uint64
		email  string
	)
	if errID := json.Unmarshal(raw[0], &userID); errID != nil {
		return 0, "", errBadPayload
	}
	if errEmail := json.Unmarshal(raw[1], &email); errEmail != nil || email == "" {
		return 0, "", errBadPayload
	}
	return userID, email, nil
}

// SessionToken issues a bearer token for user.
func (s *Signer) SessionToken(user *models.User) (string, error) {
	now := s.now()
	return s.sign(jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(user.ID, 10),
		Audience:  jwt.ClaimStrings{SessionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.SessionExpiry)),
	})
}

// ParseSession returns the user ID of a valid bearer token.
func (s *Signer) ParseSession(token string) (uint64, error) {
	var claims jwt.RegisteredClaims
	if _, errParse := s.parser(SessionAudience).ParseWithClaims(token, &claims, s.keyFunc); errParse != nil {
		return 0, fmt.Errorf("verify: parse session: %w", errParse)
	}
	userID, errID := strconv.ParseUint(claims.Subject, 10, 64)
	if errID != nil || userID == 0 {
		return 0, fmt.Errorf("verify: parse session: bad subject %q", claims.Subject)
	}
	return userID, nil
}
