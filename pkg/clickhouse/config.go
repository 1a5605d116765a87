package clickhouse

import "time"

type ClientOption func(*ClientConfig)

// ClientConfig describes one ClickHouse endpoint and the pool in front of it.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxExecTime  time.Duration

	UseHTTP      bool
	AsyncInsert  bool
	WaitForAsync bool
}

func defaultConfig() ClientConfig {
	return ClientConfig{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
}

func WithHost(host string) ClientOption { return func(c *ClientConfig) { c.Host = host } }

func WithPort(port int) ClientOption { return func(c *ClientConfig) { c.Port = port } }

func WithDatabase(db string) ClientOption { return func(c *ClientConfig) { c.Database = db } }

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) { c.User, c.Password = user, password }
}

func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) { c.DialTimeout, c.ReadTimeout, c.WriteTimeout = dial, read, write }
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption { return func(c *ClientConfig) { c.UseHTTP = on } }

// WithAsyncInsert lets the server buffer inserts; wait makes the client block
// until the buffer is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) { c.AsyncInsert, c.WaitForAsync = enabled, wait }
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
