package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// otpWindowScript cuenta solicitudes en una ventana fija de ARGV[1] milisegundos que
// arranca con la primera solicitud. Devuelve {cantidad, ms restantes}.
const otpWindowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisOTPRateLimiter guarda un contador por digest de clave en "auth:otp:<sha256>".
type redisOTPRateLimiter struct {
	logger  *zap.Logger
	client  redisEvaler
	window  time.Duration
	limit   int64
	timeout time.Duration
}

// NewRedisOTPRateLimiter comparte la cuota de OTP entre réplicas. Si redis no responde
// la solicitud pasa y se registra un warning.
func NewRedisOTPRateLimiter(logger *zap.Logger, client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisOTPRateLimiter{
		logger:  logger,
		client:  client,
		window:  window,
		limit:   int64(max),
		timeout: 500 * time.Millisecond,
	}
}

func (l *redisOTPRateLimiter) redisKey(key string) string {
	digest := limiterKeyDigest(key)
	if digest == "" {
		return ""
	}
	return "auth:otp:" + digest
}

func (l *redisOTPRateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := l.redisKey(key)
	if redisKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.client.Eval(ctx, otpWindowScript, []string{redisKey}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) == 0 {
		l.logger.Warn("otp rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	if res[0] > l.limit {
		fields := []zap.Field{zap.Int64("count", res[0])}
		if len(res) > 1 && res[1] > 0 {
			fields = append(fields, zap.Duration("retry_in", time.Duration(res[1])*time.Millisecond))
		}
		l.logger.Debug("otp rate limit exceeded", fields...)
		return false
	}
	return true
}
