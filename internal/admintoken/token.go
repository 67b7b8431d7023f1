// Package admintoken issues and checks the bearer tokens that guard the
// storage diagnostics endpoints. Tokens are HS256 JWTs carrying role "admin".
package admintoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultIssuer names tokens minted by bookctl and the book service.
	DefaultIssuer = "bookportal"
	// DefaultAudience is the storage admin surface.
	DefaultAudience = "bookportal-storage-admin"
	// DefaultTTL is the lifetime of a minted token.
	DefaultTTL = time.Hour
	// DefaultLeeway is the tolerated clock skew.
	DefaultLeeway = 15 * time.Second
	// RoleAdmin is the only role accepted by Verify.
	RoleAdmin = "admin"

	minSecretLen = 32
)

var (
	// ErrTokenRequired means no bearer token was presented.
	ErrTokenRequired = errors.New("token required")
	// ErrForbidden means the token is valid but does not grant admin.
	ErrForbidden = errors.New("admin role required")
)

// Claims are the JWT claims of an admin token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer mints admin tokens.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Verifier validates admin tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewSigner requires a shared secret of at least 32 bytes.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	key, err := secretKey(secret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: key, issuer: DefaultIssuer, ttl: ttl, now: time.Now}, nil
}

// Sign issues a token for subject with the given role.
func (s *Signer) Sign(subject, role string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("admin token subject is required")
	}
	now := s.now().UTC()
	claims := Claims{
		Role: strings.TrimSpace(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        tokenID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// NewVerifier requires the same secret the signer was built with.
func NewVerifier(secret string) (*Verifier, error) {
	key, err := secretKey(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		secret:   key,
		issuer:   DefaultIssuer,
		audience: DefaultAudience,
		leeway:   DefaultLeeway,
	}, nil
}

// Verify checks signature, expiry, issuer and audience, then the admin role.
// A well-formed token without the role yields ErrForbidden.
func (v *Verifier) Verify(token string) (Claims, error) {
	claims := Claims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrTokenRequired
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return claims, fmt.Errorf("invalid admin token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return claims, errors.New("invalid admin token: subject required")
	}
	if claims.Role != RoleAdmin {
		return claims, ErrForbidden
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

func secretKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("admin token secret must be at least %d bytes", minSecretLen)
	}
	return []byte(secret), nil
}

func tokenID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
