package sessionkit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mintSessionToken issues the HS256 token mirrored into the token cookie.
// APIs and the gRPC interceptor verify this token as a bearer credential.
func (s *Service) mintSessionToken(user *User, expires time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iss":   s.JwtIssuer,
		"aud":   "session",
		"exp":   expires.Unix(),
		"iat":   time.Now().Unix(),
	})
	return token.SignedString([]byte(s.Secret))
}

// VerifyToken checks a session token and returns the user ID it names.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	userID, _, err := VerifySessionToken([]byte(s.Secret), tokenString)
	return userID, err
}

// VerifySessionToken validates a session token against a secret and returns
// the subject and claims. It is standalone so token verification does not
// need a Service, e.g. in gRPC interceptors.
func VerifySessionToken(secret []byte, tokenString string) (string, jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", nil, err
	}
	if sub == "" {
		return "", nil, fmt.Errorf("subject not found")
	}
	return sub, claims, nil
}

// GenerateSecureToken generates a cryptographically secure random token,
// used for OAuth state nonces and CSRF nonces.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
