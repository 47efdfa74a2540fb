// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DataClient is the minimal capability the bridge needs from the backing
// data-store library: execute Get and Set against the remote server and
// yield a reply value. Implementations must be safe for concurrent use;
// every dispatch goroutine calls through the same client.
type DataClient interface {
	Get(ctx context.Context, key []byte) (Value, error)
	Set(ctx context.Context, key, value []byte) error
	Close() error
}

// Connector opens a logical connection to the backing store at the given
// address. It is invoked once per session, from the bootstrap frame.
type Connector func(ctx context.Context, address string) (DataClient, error)

// ConnectRedis is the default Connector. The address is a redis URL
// (redis://host:port/db); the returned client multiplexes all of the
// session's requests over go-redis's internal connection pool.
func ConnectRedis(ctx context.Context, address string) (DataClient, error) {
	opt, err := redis.ParseURL(address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server address")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "failed to create a connection")
	}
	return &redisClient{rdb: rdb}, nil
}

type redisClient struct {
	rdb *redis.Client
}

func (c *redisClient) Get(ctx context.Context, key []byte) (Value, error) {
	data, err := c.rdb.Get(ctx, string(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Nil(), nil
		}
		return Value{}, err
	}
	return Value{Kind: BulkStringValue, Bytes: data}, nil
}

func (c *redisClient) Set(ctx context.Context, key, value []byte) error {
	return c.rdb.Set(ctx, string(key), value, 0).Err()
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}
