package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frantchessico/prato-frio-filme/internal/identity"
)

// ErrInvalidToken is returned for any token that fails verification: bad
// signature, wrong algorithm, malformed payload or past expiry. Verification
// fails closed; there is no partial trust state.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the signed token payload. HasDonated reflects the donation flag at
// issuance time only; with a 7 day lifetime it goes stale, so gating decisions
// must always re-fetch live status from the credential store instead.
type Claims struct {
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	HasDonated bool   `json:"has_donated"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds a token issuer with the given signing secret and lifetime.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the user, expiring after the configured TTL.
func (i *Issuer) Issue(user identity.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.ttl)
	claims := Claims{
		Phone:      user.Phone,
		Name:       user.FullName(),
		HasDonated: user.HasDonated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses the token and returns its claims, or ErrInvalidToken.
func (i *Issuer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
