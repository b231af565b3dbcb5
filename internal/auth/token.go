package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-sekolah/internal/common"
)

const (
	defaultTokenTTL = 12 * time.Hour
	branchClaim     = "branch"
)

// Cashier is the operator identified by a counter token.
type Cashier struct {
	ID       string
	BranchID string
}

// TokenValidator validates structural and contextual properties of JWT tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate ensures the token satisfies issuer, audience, expiry, algorithm
// and subject requirements.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// Config configures a Verifier.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	TokenTTL  time.Duration
}

// Verifier checks HS256 cashier tokens issued for counter devices.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	validator TokenValidator
	now       func() time.Time
}

// NewVerifier constructs a Verifier with sane defaults.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-sekolah"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "fee-counter"
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: skew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock, for tests.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Issue signs a token for a cashier. An empty branch leaves the token usable
// at any branch.
func (v *Verifier) Issue(c Cashier) (string, time.Time, error) {
	if strings.TrimSpace(c.ID) == "" {
		return "", time.Time{}, errors.New("auth: cashier id is required")
	}
	now := v.now()
	expiresAt := now.Add(v.ttl)
	builder := jwt.NewBuilder().
		Subject(c.ID).
		Issuer(v.issuer).
		Audience([]string{v.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-v.validator.ClockSkew)).
		Expiration(expiresAt)
	if c.BranchID != "" {
		builder = builder.Claim(branchClaim, c.BranchID)
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Parse validates a token and returns the cashier it identifies.
func (v *Verifier) Parse(token string) (Cashier, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Cashier{}, unauthorized("missing token", nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Cashier{}, unauthorized("invalid token", err)
	}
	if algorithm != v.validator.Algorithm {
		return Cashier{}, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Cashier{}, unauthorized("invalid token", err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return Cashier{}, unauthorized("invalid token", err)
	}
	c := Cashier{ID: parsed.Subject()}
	if raw, ok := parsed.Get(branchClaim); ok {
		if s, ok := raw.(string); ok {
			c.BranchID = strings.TrimSpace(s)
		}
	}
	return c, nil
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
