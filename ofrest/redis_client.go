package ofrest

import (
	context "context"
	redis "github.com/go-redis/redis/v8"
)

// RedisClient wraps the pubsub connection used as the switch control
// plane. |ctx| scopes publishes issued outside a caller context.
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

func (c *RedisClient) IsConnEstablished() bool {
	return c.client != nil
}

// Connects to a Redis server at |addr| (e.g. "127.0.0.1:6379") and
// verifies the connection with a ping.
func (c *RedisClient) EstablishConnection(addr string, pass string, db int) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return err
	}
	c.client = client
	c.ctx = ctx
	return nil
}

// Closes the connection and resets the client to nil.
func (c *RedisClient) CloseConnection() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}
