package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the token handling configuration.
	*Config

	// RequireAuth when true rejects calls without a verified token.
	// When false, calls proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only consulted when RequireAuth is true.
	// Keys are full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires a valid token on every
// method.
func NewInterceptorConfig(verify func(string) (string, error)) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        &Config{VerifyToken: verify},
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig returns a config that requires a valid token except
// on the named methods.
func NewPublicMethodsConfig(verify func(string) (string, error), publicMethods ...string) *InterceptorConfig {
	config := NewInterceptorConfig(verify)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that verifies tokens when present but
// lets anonymous calls through.
func OptionalAuthConfig(verify func(string) (string, error)) *InterceptorConfig {
	config := NewInterceptorConfig(verify)
	config.RequireAuth = false
	return config
}

func normalizeInterceptorConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = &InterceptorConfig{RequireAuth: true}
	}
	if config.Config == nil {
		config.Config = &Config{}
	}
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	config.Config.EnsureDefaults()
	return config
}

// UnaryAuthInterceptor returns a unary interceptor that verifies the bearer
// token and stores the user ID in the handler context. Calls that must be
// authenticated and are not fail with codes.Unauthenticated.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = normalizeInterceptorConfig(config)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		userID := verifyCall(ctx, config)

		if userID == "" && config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			return nil, status.Error(codes.Unauthenticated, "must sign in to access this resource")
		}
		if userID != "" {
			ctx = ContextWithUserID(ctx, userID)
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is UnaryAuthInterceptor for streams.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = normalizeInterceptorConfig(config)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		userID := verifyCall(ctx, config)

		if userID == "" && config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			return status.Error(codes.Unauthenticated, "must sign in to access this resource")
		}
		if userID != "" {
			ss = &wrappedStream{ServerStream: ss, ctx: ContextWithUserID(ctx, userID)}
		}
		return handler(srv, ss)
	}
}

// verifyCall resolves the call's user ID from its bearer tokens. Invalid
// tokens make the call anonymous, never an error by themselves.
func verifyCall(ctx context.Context, config *InterceptorConfig) string {
	if config.Config.VerifyToken == nil {
		return ""
	}

	for _, token := range bearerTokensFromContext(ctx, config.Config.MetadataKeyAuthorization) {
		userID, err := config.Config.VerifyToken(token)
		if err == nil && userID != "" {
			return userID
		}
		if err != nil {
			slog.Debug("error verifying token", "err", err)
		}
	}
	return ""
}

// wrappedStream overrides the stream context with the verified identity.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
