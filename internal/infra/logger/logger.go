package logger

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger configured for structured logging.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.InitialFields = map[string]any{"component": "payroll-access"}

		lg, err = cfg.Build()
	})

	return lg, err
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// UserIDKey is used to store the authenticated caller on the context.
type UserIDKey struct{}

// WithContext attaches request scoped fields to the base logger.
func WithContext(ctx context.Context) *zap.Logger {
	base := lg
	if base == nil {
		base = zap.NewNop()
	}
	return Scoped(base, ctx)
}

// Scoped decorates log with the request and caller identifiers found on ctx.
func Scoped(log *zap.Logger, ctx context.Context) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if ctx == nil {
		return log
	}

	fields := make([]zap.Field, 0, 2)
	if id, ok := ctx.Value(RequestIDKey{}).(string); ok && id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctx.Value(UserIDKey{}).(string); ok && id != "" {
		fields = append(fields, zap.String("user_id", id))
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail masks login identifiers, keeping the first 3 characters and the domain.
// Example: jane.doe@example.com -> jan***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	if matches := emailRegex.FindStringSubmatch(email); len(matches) == 3 {
		return matches[1] + "***" + matches[2]
	}

	if _, domainPart, ok := strings.Cut(email, "@"); ok {
		return "***@" + domainPart
	}

	return "***"
}

// MaskIP keeps the network half of an address.
// 192.168.1.100 -> 192.168.*.*, 2001:db8:85a3:0:0:8a2e:370:7334 -> 2001:db8:85a3:0:*:*:*:*
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "***"
	}

	if v4 := parsed.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return parts[0] + "." + parts[1] + ".*.*"
	}

	parts := strings.Split(ip, ":")
	if len(parts) >= 4 {
		return strings.Join(parts[:4], ":") + ":*:*:*:*"
	}
	return "***"
}
