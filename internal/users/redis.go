package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mindful:user:"

// RedisDirectory stores each account as a JSON document under
// mindful:user:<email>.
type RedisDirectory struct {
	client redis.UniversalClient
}

// NewRedisDirectory wraps an existing redis client.
func NewRedisDirectory(client redis.UniversalClient) *RedisDirectory {
	return &RedisDirectory{client: client}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

func redisKey(email string) string {
	return redisKeyPrefix + NormalizeEmail(email)
}

// Create implements Directory. SETNX makes concurrent registrations of the
// same email race-free.
func (d *RedisDirectory) Create(ctx context.Context, u User) (User, error) {
	u = prepare(u)

	data, err := json.Marshal(u)
	if err != nil {
		return User{}, fmt.Errorf("failed to marshal user: %w", err)
	}

	created, err := d.client.SetNX(ctx, redisKey(u.Email), data, 0).Result()
	if err != nil {
		return User{}, fmt.Errorf("failed to store user: %w", err)
	}
	if !created {
		return User{}, ErrUserExists
	}
	return u, nil
}

// Get implements Directory.
func (d *RedisDirectory) Get(ctx context.Context, email string) (User, error) {
	data, err := d.client.Get(ctx, redisKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to load user: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, fmt.Errorf("failed to parse user: %w", err)
	}
	return u, nil
}
