package api

import (
	"context"
	"strings"
	"sync"

	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AccountMetadataKey is the metadata key carrying the caller's account
const AccountMetadataKey = "x-hamster-account"

type accountKey struct{}

// WithAccount returns a context carrying the caller's account
func WithAccount(ctx context.Context, account types.AccountID) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// AccountFromContext returns the caller's account set by the account interceptor
func AccountFromContext(ctx context.Context) (types.AccountID, bool) {
	account, ok := ctx.Value(accountKey{}).(types.AccountID)
	return account, ok && account != ""
}

func accountFromMetadata(ctx context.Context) types.AccountID {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(AccountMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return types.AccountID(strings.TrimSpace(values[0]))
}

// AccountInterceptor reads the caller's account from metadata. Methods that
// change state are rejected without one.
func AccountInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		account := accountFromMetadata(ctx)
		if account == "" {
			if !isReadOnlyMethod(info.FullMethod) {
				return nil, status.Errorf(codes.Unauthenticated, "missing %s metadata", AccountMetadataKey)
			}
			return handler(ctx, req)
		}
		return handler(WithAccount(ctx, account), req)
	}
}

// AccountStreamInterceptor is AccountInterceptor for streaming methods
func AccountStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		account := accountFromMetadata(ss.Context())
		if account == "" {
			if !isReadOnlyMethod(info.FullMethod) {
				return status.Errorf(codes.Unauthenticated, "missing %s metadata", AccountMetadataKey)
			}
			return handler(srv, ss)
		}
		return handler(srv, &accountStream{ServerStream: ss, ctx: WithAccount(ss.Context(), account)})
	}
}

type accountStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *accountStream) Context() context.Context {
	return s.ctx
}

var validate = validator.New()

// ValidationInterceptor rejects requests whose fields fail their validate tags
func ValidationInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := validate.Struct(req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return handler(ctx, req)
	}
}

// RateLimit configures per-account request limits. A zero
// RequestsPerSecond disables limiting.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// maxLimiters bounds the per-account buckets kept in memory
const maxLimiters = 10000

// rateLimiter keeps one token bucket per account
type rateLimiter struct {
	mu       sync.Mutex
	limit    RateLimit
	limiters map[types.AccountID]*rate.Limiter
	logger   zerolog.Logger
}

func newRateLimiter(limit RateLimit) *rateLimiter {
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	return &rateLimiter{
		limit:    limit,
		limiters: make(map[types.AccountID]*rate.Limiter),
		logger:   log.WithComponent("api"),
	}
}

func (l *rateLimiter) allow(account types.AccountID) bool {
	if l.limit.RequestsPerSecond <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) >= maxLimiters {
		l.logger.Info().Int("count", len(l.limiters)).Msg("Clearing rate limiters")
		l.limiters = make(map[types.AccountID]*rate.Limiter)
	}

	limiter, exists := l.limiters[account]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(l.limit.RequestsPerSecond), l.limit.Burst)
		l.limiters[account] = limiter
	}
	return limiter.Allow()
}

// RateLimitInterceptor limits requests per caller account. Anonymous reads
// share one bucket.
func RateLimitInterceptor(limit RateLimit) grpc.UnaryServerInterceptor {
	limiter := newRateLimiter(limit)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		account, _ := AccountFromContext(ctx)
		if !limiter.allow(account) {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %q", account)
		}
		return handler(ctx, req)
	}
}

// MetricsInterceptor records request counts and durations and converts
// handler errors to gRPC status errors
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	logger := log.WithComponent("api")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		method := methodName(info.FullMethod)
		timer := metrics.NewTimer()

		resp, err := handler(ctx, req)
		err = ToStatus(err)

		timer.ObserveDurationVec(metrics.APIRequestDuration, method)
		metrics.APIRequestsTotal.WithLabelValues(method, status.Code(err).String()).Inc()

		if err != nil {
			logger.Debug().Str("method", method).Err(err).Msg("Request failed")
		}
		return resp, err
	}
}

// ReadOnlyInterceptor creates a gRPC unary interceptor that only allows read-only operations.
// This is used for the Unix socket listener to prevent write operations from local CLI.
func ReadOnlyInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(
				codes.PermissionDenied,
				"write operations not allowed on Unix socket - use the TCP API address",
			)
		}
		return handler(ctx, req)
	}
}

// methodName extracts the method from a full path
// (e.g., "/hamster.v1.Provider/GetRank" -> "GetRank")
func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}

// isReadOnlyMethod checks if a gRPC method is read-only
func isReadOnlyMethod(method string) bool {
	name := methodName(method)
	if name == "" {
		return false
	}

	readOnlyPrefixes := []string{
		"List",
		"Get",
		"Watch",
	}

	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	// Default: block
	return false
}
