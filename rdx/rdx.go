package rdx

import (
	"time"

	"sattva/config"
	"sattva/globals"

	"github.com/redis/go-redis/v9"
)

var Conn *redis.Client

func Init(cfg config.RedisConfig) error {
	Conn = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return Conn.Ping(globals.Ctx).Err()
}

// RdxSetNX acquires key if absent, with a TTL. Used for short locks and
// the heartbeat rate-limit fast path.
func RdxSetNX(key, value string, ttl time.Duration) (bool, error) {
	return Conn.SetNX(globals.Ctx, key, value, ttl).Result()
}

func RdxDel(key string) {
	Conn.Del(globals.Ctx, key)
}
