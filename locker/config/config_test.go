package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/git-hulk/go-lock/locker"
	"github.com/git-hulk/go-lock/locker/engine/store"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	require.Equal(t, BackendRedis, cfg.Backend)
	require.Equal(t, locker.DefaultRetryDelay, cfg.RetryDelay)
	require.Equal(t, locker.DefaultTTL, cfg.DefaultTTL)
	require.False(t, cfg.SafeRelease)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, []string{"localhost:2379"}, cfg.EtcdEndpoints)
	require.Equal(t, "default", cfg.K8sNamespace)
	require.Len(t, cfg.Options(), 2)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GOLOCK_BACKEND", "memory")
	t.Setenv("GOLOCK_RETRY_DELAY", "100ms")
	t.Setenv("GOLOCK_DEFAULT_TTL", "10s")
	t.Setenv("GOLOCK_SAFE_RELEASE", "true")
	t.Setenv("GOLOCK_ETCD_ENDPOINTS", "etcd-0:2379, etcd-1:2379")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Backend)
	require.Equal(t, 100*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, 10*time.Second, cfg.DefaultTTL)
	require.True(t, cfg.SafeRelease)
	require.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, cfg.EtcdEndpoints)
	require.Len(t, cfg.Options(), 3)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOLOCK_REDIS_ADDR=redis:6380\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() {
		require.NoError(t, os.Chdir(wd))
		require.NoError(t, os.Unsetenv("GOLOCK_REDIS_ADDR"))
	}()

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis:6380", cfg.RedisAddr)
}

func TestValidate(t *testing.T) {
	v := viper.New()
	v.Set("backend", "zookeeper")
	_, err := FromViper(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("retry-delay", "-1s")
	_, err = FromViper(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("backend", "etcd")
	v.Set("etcd-endpoints", " , ")
	_, err = FromViper(v)
	require.Error(t, err)
}

func TestNewCoordinatorMemory(t *testing.T) {
	v := viper.New()
	v.Set("backend", "memory")
	v.Set("safe-release", true)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	ctx := context.Background()
	s, closeFn, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &store.MemoryStore{}, s)
	require.NoError(t, closeFn())

	coordinator, closeFn, err := NewCoordinator(ctx, cfg)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, closeFn())
	}()
	h, err := coordinator.Acquire(ctx, "config", time.Second)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))
}

func TestOpenRedisUnreachable(t *testing.T) {
	v := viper.New()
	v.Set("redis-addr", "127.0.0.1:1")
	cfg, err := FromViper(v)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = Open(ctx, cfg)
	require.Error(t, err)
}
