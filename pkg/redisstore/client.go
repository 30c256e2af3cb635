package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// NewClient opens the process-wide Redis connection and verifies it is
// reachable before any traffic is accepted. The returned client is shared by
// every cache, lock and limiter in the process; callers construct it once at
// startup and inject it into dependents.
func NewClient(addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	log.Infof("redis connection established to %s", addr)
	return client, nil
}
