package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/synthsara/codex/internal/pkg/cache"
	"github.com/synthsara/codex/internal/pkg/env"
)

// Limiter counters live apart from the entitlement cache (DB 0).
const storageDatabase = 2

// NewStorage builds limiter storage on the same redis server as the cache.
func NewStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		host, port = splitAddr(cacheClient.Options().Addr, host, port)
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}
	return NewStorageAt(host, port, password)
}

// NewStorageAt connects to an explicit redis address. It panics if redis is
// unreachable.
func NewStorageAt(host string, port int, password string) fiber.Storage {
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: storageDatabase,
		Reset:    false,
	})
}

func splitAddr(addr, defHost string, defPort int) (string, int) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return defHost, defPort
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return h, defPort
	}
	return h, port
}

// New returns a per-IP fixed window limiter backed by storage. A nil storage
// keeps the counters in memory.
func New(storage fiber.Storage, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ratelimit:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	})
}
