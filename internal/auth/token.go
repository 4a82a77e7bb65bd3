// Package auth implements the signing and verification of session tokens.
// The codec is a pure function of the configured secret: it performs no I/O
// and is safe for concurrent use. Revocation state lives in the token
// ledger (repository.TokenRepo), not here.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes short-lived access tokens from the refresh tokens used
// to rotate them. The value is carried in the "type" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const issuer = "tg"

// ErrInvalidToken is returned for any token that fails signature, format or
// claim validation. Callers translate it into a 401 / policy-violation close.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the decoded payload of a session token. It lives only for the
// duration of a request; durable token state is the ledger row keyed by JTI.
type Claims struct {
	Subject   string // user id (sub)
	Kind      Kind   // access | refresh (type)
	JTI       string // unique token id
	DeviceID  string // client instance the token is bound to
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time // zero for non-expiring tokens
}

// Codec signs and verifies HS256 session tokens.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec { return &Codec{secret: []byte(secret)} }

// Sign builds and signs a token of the given kind. Standard claims (iss,
// sub, type, jti, iat, nbf) are filled in; extra claims such as device_id
// are merged on top and may override jti or nbf. A ttl of zero produces a
// token without an exp claim, reserved for privileged issuance and never
// used for user sessions. Otherwise exp is exactly nbf plus ttl in whole
// seconds.
func (c *Codec) Sign(kind Kind, subject string, extra map[string]any, ttl time.Duration) (string, error) {
	now := time.Now().UTC().Unix()
	claims := jwt.MapClaims{
		"iss":  issuer,
		"sub":  subject,
		"type": string(kind),
		"jti":  uuid.NewString(),
		"iat":  now,
		"nbf":  now,
	}
	for k, v := range extra {
		claims[k] = v
	}
	if ttl > 0 {
		claims["exp"] = asUnix(claims["nbf"]) + int64(ttl/time.Second)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks the signature and time claims (exp, nbf) and returns the
// decoded claims. Any failure is reported as ErrInvalidToken.
func (c *Codec) Verify(token string) (Claims, error) {
	return c.verify(token, false)
}

// VerifyIgnoreExpiry checks the signature but accepts expired tokens. It is
// used only by the refresh flow, where a just-expired access token may still
// identify its caller. Every other call site must use Verify.
func (c *Codec) VerifyIgnoreExpiry(token string) (Claims, error) {
	return c.verify(token, true)
}

func (c *Codec) verify(token string, skipExpiry bool) (Claims, error) {
	keyFn := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}
	var opts []jwt.ParserOption
	if skipExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	tok, err := jwt.Parse(token, keyFn, opts...)
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return claimsFrom(mc), nil
}

// DecodeUnsafe decodes a token without verifying its signature. It exists so
// the process can read back the jti/exp of a token it just signed before
// persisting the ledger row. It must never be called on tokens received
// from a client.
func (c *Codec) DecodeUnsafe(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, mc)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	return claimsFrom(mc), nil
}

func claimsFrom(mc jwt.MapClaims) Claims {
	cl := Claims{}
	if v, ok := mc["sub"].(string); ok {
		cl.Subject = v
	}
	if v, ok := mc["type"].(string); ok {
		cl.Kind = Kind(v)
	}
	if v, ok := mc["jti"].(string); ok {
		cl.JTI = v
	}
	if v, ok := mc["device_id"].(string); ok {
		cl.DeviceID = v
	}
	cl.IssuedAt = asTime(mc["iat"])
	cl.NotBefore = asTime(mc["nbf"])
	cl.ExpiresAt = asTime(mc["exp"])
	return cl
}

// asUnix normalizes a numeric claim to unix seconds. Claims set by Sign are
// int64; claims that round-tripped through JSON arrive as float64.
func asUnix(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

func asTime(v any) time.Time {
	if v == nil {
		return time.Time{}
	}
	n := asUnix(v)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
