package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NeedsRefresh reports whether a backend access token expires within skew
// of now. Tokens that are not JWTs or carry no exp claim are trusted as is.
func NeedsRefresh(token string, skew time.Duration, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(claims.ExpiresAt.Time)
}

// ViewerAuth issues and checks the tokens dashboard viewers present on the
// local stream endpoint
type ViewerAuth struct {
	secret      []byte
	tokenExpiry time.Duration
}

// ViewerClaims represents the JWT claims of a viewer token
type ViewerClaims struct {
	Viewer string `json:"viewer"`
	jwt.RegisteredClaims
}

// NewViewerAuth creates the viewer token service
func NewViewerAuth(secret []byte, tokenExpiry time.Duration) (*ViewerAuth, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("viewer secret is %d bytes, need at least 32", len(secret))
	}
	if tokenExpiry == 0 {
		tokenExpiry = 30 * 24 * time.Hour
	}
	return &ViewerAuth{secret: secret, tokenExpiry: tokenExpiry}, nil
}

// GenerateToken creates a viewer token
func (a *ViewerAuth) GenerateToken(viewer string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.tokenExpiry)

	claims := ViewerClaims{
		Viewer: viewer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "uptimeboard",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies and parses a viewer token
func (a *ViewerAuth) ValidateToken(tokenString string) (*ViewerClaims, error) {
	claims := &ViewerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer("uptimeboard"))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
