package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims this service reads. An office id of "*"
// grants access to every office.
type Claims struct {
	OfficeID string `json:"office_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the office, role and subject the claims grant.
func (c *Claims) Identity() (officeID string, role Role, subject string) {
	role, _ = NormalizeRole(c.Role)
	return c.OfficeID, role, c.Subject
}

// Verifier checks HS256 bearer tokens issued for this service.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithAudience requires audience in the aud claim.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) {
		v.audience = audience
	}
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		if leeway > 0 {
			v.leeway = leeway
		}
	}
}

// NewVerifier returns nil when secret is empty; a nil verifier disables auth.
func NewVerifier(secret []byte, opts ...VerifierOption) *Verifier {
	if len(secret) == 0 {
		return nil
	}
	v := &Verifier{secret: secret}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses tokenString and checks signature, expiry and the office and
// role claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v == nil {
		return nil, errors.New("auth: nil verifier")
	}
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.OfficeID == "" {
		return nil, errors.New("auth: missing office_id")
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, errors.New("auth: invalid role")
	}
	return claims, nil
}
