// Package redis persists watcher state in Redis and publishes watcher events
// over Redis pub/sub.
package redis

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// clientName identifies txwatch connections in CLIENT LIST.
const clientName = "txwatch"

type client struct {
	conn *redis.Client
}

func (c *client) Close() error {
	return c.conn.Close()
}

// NewClient connects to the Redis server at addr and checks it answers PING.
func NewClient(ctx context.Context, addr, username, password string, db int) (*client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:       addr,
		ClientName: clientName,
		Username:   username,
		Password:   password,
		DB:         db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", addr, errors.Join(err, conn.Close()))
	}

	return &client{conn: conn}, nil
}
