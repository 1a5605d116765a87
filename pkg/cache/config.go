package cache

import "time"

type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	PingTimeout  time.Duration
	// Prefix namespaces every key, e.g. "coinodds" gives "coinodds:<key>".
	Prefix string
}

func WithRedisAddr(addr string) RedisOption { return func(c *RedisConfig) { c.Addr = addr } }

func WithRedisPassword(pw string) RedisOption { return func(c *RedisConfig) { c.Password = pw } }

func WithRedisDB(db int) RedisOption { return func(c *RedisConfig) { c.DB = db } }

func WithRedisPrefix(prefix string) RedisOption { return func(c *RedisConfig) { c.Prefix = prefix } }

// WithRedisPool sizes the connection pool.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize, c.MinIdleConns, c.PoolTimeout = size, minIdle, timeout
	}
}

type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxSize int
	Now     func() time.Time
}

func WithMemoryMaxSize(size int) MemoryOption { return func(c *MemoryConfig) { c.MaxSize = size } }

// WithMemoryClock replaces time.Now.
func WithMemoryClock(now func() time.Time) MemoryOption { return func(c *MemoryConfig) { c.Now = now } }

type LayeredOption func(*LayeredConfig)

type LayeredConfig struct {
	MemoryMaxSize int
	// PromoteTTL bounds how long an entry read from L2 is served from L1.
	PromoteTTL time.Duration
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryMaxSize = size }
}

func WithLayeredPromoteTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) { c.PromoteTTL = ttl }
}
