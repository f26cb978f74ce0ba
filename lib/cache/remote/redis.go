package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/llm-privacy/anonymisation-api/lib/cache"
)

type RedisConfig struct {
	Host string
	Port int
	// TTL bounds how long detections live server-side. Zero means no expiry.
	TTL time.Duration
}

func NewRedisClient(conf RedisConfig) cache.Client {
	return &redisClient{
		Client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", conf.Host, conf.Port)}),
		ttl: conf.TTL,
	}
}

type redisClient struct {
	*redis.Client
	ttl time.Duration
}

func (r *redisClient) Get(key string) (*cache.Detection, error) {
	b, err := r.Client.Get(key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var detection cache.Detection
	if err := json.Unmarshal(b, &detection); err != nil {
		return nil, err
	}
	return &detection, nil
}

func (r *redisClient) Set(key string, detection *cache.Detection) error {
	b, err := json.Marshal(detection)
	if err != nil {
		return err
	}
	return r.Client.Set(key, b, r.ttl).Err()
}

func (r *redisClient) Ready() bool {
	return r.Ping().Err() == nil
}
