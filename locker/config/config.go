// Package config loads coordinator settings from the environment and builds
// the configured store.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/git-hulk/go-lock/locker"
	"github.com/git-hulk/go-lock/locker/engine"
	"github.com/git-hulk/go-lock/locker/engine/store"
)

const EnvPrefix = "golock"

type Backend string

const (
	BackendMemory      Backend = "memory"
	BackendRedis       Backend = "redis"
	BackendRedisLegacy Backend = "redis-legacy"
	BackendRedisLock   Backend = "redislock"
	BackendEtcd        Backend = "etcd"
	BackendK8s         Backend = "k8s"
)

// Config holds the coordinator and store settings.
type Config struct {
	Backend     Backend
	RetryDelay  time.Duration
	DefaultTTL  time.Duration
	SafeRelease bool

	// redis backends
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// etcd backend
	EtcdEndpoints   []string
	EtcdDialTimeout time.Duration

	// kubernetes backend, an empty config path means in-cluster
	K8sConfigPath string
	K8sNamespace  string
}

// Load reads .env and .env.local if present, then GOLOCK_* environment
// variables, e.g. GOLOCK_RETRY_DELAY=100ms.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper reads the config from v, applying the defaults first.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("backend", string(BackendRedis))
	v.SetDefault("retry-delay", locker.DefaultRetryDelay)
	v.SetDefault("default-ttl", locker.DefaultTTL)
	v.SetDefault("safe-release", false)
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-db", 0)
	v.SetDefault("etcd-endpoints", "localhost:2379")
	v.SetDefault("etcd-dial-timeout", 5*time.Second)
	v.SetDefault("k8s-namespace", "default")

	cfg := &Config{
		Backend:         Backend(v.GetString("backend")),
		RetryDelay:      v.GetDuration("retry-delay"),
		DefaultTTL:      v.GetDuration("default-ttl"),
		SafeRelease:     v.GetBool("safe-release"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisPassword:   v.GetString("redis-password"),
		RedisDB:         v.GetInt("redis-db"),
		EtcdDialTimeout: v.GetDuration("etcd-dial-timeout"),
		K8sConfigPath:   v.GetString("k8s-config"),
		K8sNamespace:    v.GetString("k8s-namespace"),
	}
	for _, endpoint := range strings.Split(v.GetString("etcd-endpoints"), ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			cfg.EtcdEndpoints = append(cfg.EtcdEndpoints, endpoint)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values the coordinator would reject.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendRedisLegacy, BackendRedisLock, BackendEtcd, BackendK8s:
	default:
		return fmt.Errorf("invalid backend %q", c.Backend)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got %s", c.RetryDelay)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default ttl must be positive, got %s", c.DefaultTTL)
	}
	if c.Backend == BackendEtcd && len(c.EtcdEndpoints) == 0 {
		return fmt.Errorf("etcd backend needs at least one endpoint")
	}
	return nil
}

// Options returns the coordinator options described by the config.
func (c *Config) Options() []locker.Option {
	opts := []locker.Option{
		locker.WithRetryDelay(c.RetryDelay),
		locker.WithDefaultTTL(c.DefaultTTL),
	}
	if c.SafeRelease {
		opts = append(opts, locker.WithSafeRelease())
	}
	return opts
}

// Open connects to the configured backend. The returned close function
// releases the client connection.
func Open(ctx context.Context, c *Config) (engine.Store, func() error, error) {
	nop := func() error { return nil }
	switch c.Backend {
	case BackendMemory:
		return store.NewMemoryStore(nil), nop, nil
	case BackendRedis, BackendRedisLegacy, BackendRedisLock:
		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", c.RedisAddr, err)
		}
		switch c.Backend {
		case BackendRedisLegacy:
			return store.NewLegacyRedisStore(client), client.Close, nil
		case BackendRedisLock:
			return store.NewRedisLockStore(client), client.Close, nil
		}
		return store.NewRedisStore(client), client.Close, nil
	case BackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   c.EtcdEndpoints,
			DialTimeout: c.EtcdDialTimeout,
			Context:     ctx,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect etcd: %w", err)
		}
		return store.NewEtcdStore(client), client.Close, nil
	case BackendK8s:
		restConfig, err := clientcmd.BuildConfigFromFlags("", c.K8sConfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load kubernetes config: %w", err)
		}
		client, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("create kubernetes client: %w", err)
		}
		return store.NewK8sStore(client, c.K8sNamespace), nop, nil
	default:
		return nil, nil, fmt.Errorf("invalid backend %q", c.Backend)
	}
}

// NewCoordinator opens the configured store and creates a coordinator on it.
func NewCoordinator(ctx context.Context, c *Config) (*locker.Coordinator, func() error, error) {
	s, closeFn, err := Open(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	coordinator, err := locker.New(s, c.Options()...)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return coordinator, closeFn, nil
}
