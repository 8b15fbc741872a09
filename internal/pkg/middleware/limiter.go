package middleware

import (
	"net"
	"strconv"
	"time"

	"github.com/aifans/aifans/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"
)

// NewLimiterStorage keeps limiter counters in Redis database 1, next to the
// cache in database 0.
func NewLimiterStorage(rdb *redis.Client) fiber.Storage {
	opts := rdb.Options()
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: opts.Username,
		Password: opts.Password,
		Database: 1,
		Reset:    false,
	})
}

// PerUserLimiter allows max requests per window for each authenticated user.
// A nil storage keeps counters in memory.
func PerUserLimiter(max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetUserID(c); id != 0 {
				return "user:" + strconv.FormatUint(uint64(id), 10)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "请求过于频繁，请稍后再试")
		},
	})
}
