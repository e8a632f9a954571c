package store

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/git-hulk/go-lock/internal"
)

// revokeTimeout bounds the cleanup of a lease granted for a failed SetNX.
// etcd calls wait for the connection to be ready, so an unbounded revoke
// would outlive the caller's cancellation while etcd is down.
const revokeTimeout = time.Second

// etcdClient is the part of *clientv3.Client the store talks to.
type etcdClient interface {
	clientv3.KV
	clientv3.Lease
}

// EtcdStore implements engine.Store with etcd leases. A key is written in a
// transaction guarded on its create revision, and bound to a lease so that
// etcd removes it once the TTL elapses.
//
// Leases have whole-second granularity: the TTL is rounded up to the next
// second, and etcd raises it further to its minimum lease TTL (about two
// seconds with the default election timeout). An abandoned key may therefore
// stay held for longer than the requested TTL.
type EtcdStore struct {
	client        etcdClient
	revokeTimeout time.Duration
}

// NewEtcdStore creates an EtcdStore.
func NewEtcdStore(client *clientv3.Client) *EtcdStore {
	return &EtcdStore{client: client, revokeTimeout: revokeTimeout}
}

// leaseSeconds rounds ttl up to whole seconds, the lease granularity of etcd.
func leaseSeconds(ttl time.Duration) int64 {
	seconds := int64((ttl + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (s *EtcdStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	lease, err := s.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return false, err
	}

	rsp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil || !rsp.Succeeded {
		s.revoke(ctx, lease.ID)
		return false, err
	}
	return true, nil
}

// revoke drops an unused lease. It still runs when ctx is already canceled,
// but never longer than the revoke timeout; a lease left behind expires on
// its own.
func (s *EtcdStore) revoke(ctx context.Context, id clientv3.LeaseID) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.revokeTimeout)
	defer cancel()
	if _, err := s.client.Revoke(rctx, id); err != nil {
		internal.GetLogger().Printf("Failed to revoke lease[%x], err: %v", id, err)
	}
}

func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.Delete(ctx, key)
	return err
}

func (s *EtcdStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	rsp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", value)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, err
	}
	return rsp.Succeeded, nil
}
