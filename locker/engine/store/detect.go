package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/git-hulk/go-lock/locker/engine"
)

// Detect selects the store adapter for client once, by the capabilities the
// client exposes:
//
//   - an engine.Store is used as-is
//   - a client with SetArgs (any go-redis client) gets the option-object form
//   - a client with only Do gets the positional form
//   - an etcd client gets the lease based store
//
// Anything else fails with engine.ErrMissingCapability, and so does a nil
// pointer to one of the known clients or stores.
func Detect(client any) (engine.Store, error) {
	if IsNil(client) {
		return nil, fmt.Errorf("%w: nil client %T", engine.ErrMissingCapability, client)
	}
	switch c := client.(type) {
	case engine.Store:
		return c, nil
	case RedisSetArgser:
		return NewRedisStore(c), nil
	case RedisDoer:
		return NewLegacyRedisStore(c), nil
	case *clientv3.Client:
		return NewEtcdStore(c), nil
	default:
		return nil, fmt.Errorf("%w: %T", engine.ErrMissingCapability, client)
	}
}

// IsNil reports whether client is nil, or a nil pointer to one of the
// clients and stores of this package. Other typed nils are not recognized.
func IsNil(client any) bool {
	switch c := client.(type) {
	case nil:
		return true
	case *redis.Client:
		return c == nil
	case *redis.ClusterClient:
		return c == nil
	case *redis.Ring:
		return c == nil
	case *clientv3.Client:
		return c == nil
	case *RedisStore:
		return c == nil
	case *LegacyRedisStore:
		return c == nil
	case *RedisLockStore:
		return c == nil
	case *EtcdStore:
		return c == nil
	case *K8sStore:
		return c == nil
	case *MemoryStore:
		return c == nil
	}
	return false
}
