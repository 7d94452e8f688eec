// Package grpc verifies sessionkit bearer tokens on gRPC calls and carries
// the resulting user identity through the request context.
//
// Token verification is injected as a function, so this package never
// decides what a valid token is; the sessionkit service does. Wire it up
// with Service.VerifyToken:
//
//	cfg := grpcauth.NewInterceptorConfig(svc.VerifyToken)
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(grpcauth.UnaryAuthInterceptor(cfg)),
//	    grpc.StreamInterceptor(grpcauth.StreamAuthInterceptor(cfg)),
//	)
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the default gRPC metadata key carrying
// the bearer token.
const DefaultMetadataKeyAuthorization = "authorization"

type userIDCtxKey struct{}

// Config holds the token handling configuration for the interceptors.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key inspected for the
	// bearer token. Defaults to "authorization".
	MetadataKeyAuthorization string

	// VerifyToken validates a token and returns the user ID it names.
	// Typically sessionkit's Service.VerifyToken.
	VerifyToken func(tokenString string) (userID string, err error)
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// ContextWithUserID returns a context carrying the verified user ID. The
// interceptors call this; handlers read it back with UserIDFromContext.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDCtxKey{}, userID)
}

// UserIDFromContext returns the verified user ID, or empty when the call is
// anonymous.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDCtxKey{}).(string)
	return userID
}

// IsAuthenticated reports whether the call carries a verified user.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches a bearer token to an outgoing call.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeyAuthorization)
}

// TokenToOutgoingContextWithKey attaches a bearer token under a custom key.
func TokenToOutgoingContextWithKey(ctx context.Context, token, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, "Bearer "+token)
}

// bearerTokensFromContext collects candidate tokens from incoming metadata,
// with or without the Bearer prefix.
func bearerTokensFromContext(ctx context.Context, key string) []string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	var tokens []string
	for _, value := range md.Get(key) {
		value = strings.TrimSpace(strings.TrimPrefix(value, "Bearer "))
		if value != "" {
			tokens = append(tokens, value)
		}
	}
	return tokens
}
