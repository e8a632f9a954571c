package store

import (
	"context"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"

	"github.com/git-hulk/go-lock/internal"
)

// ExpireAtAnnotation records the exact expiry of a lease, LeaseDurationSeconds
// only has second precision.
const ExpireAtAnnotation = "go-lock/expire-at"

// K8sStore implements engine.Store with coordination.k8s.io Leases, one lease
// per key. Kubernetes never removes an expired lease by itself, so expiry is
// evaluated here and an expired lease is taken over on the next SetNX. Keys
// must be valid object names (lowercase DNS subdomains).
type K8sStore struct {
	client    kubernetes.Interface
	namespace string
	clock     clock.PassiveClock
}

// NewK8sStore creates a K8sStore in the given namespace.
func NewK8sStore(client kubernetes.Interface, namespace string) *K8sStore {
	return &K8sStore{
		client:    client,
		namespace: namespace,
		clock:     clock.RealClock{},
	}
}

// WithClock replaces the clock used to stamp and expire leases.
func (s *K8sStore) WithClock(c clock.PassiveClock) *K8sStore {
	s.clock = c
	return s
}

func (s *K8sStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	leases := s.client.CoordinationV1().Leases(s.namespace)

	// 1. create the lease if absent
	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      key,
			Namespace: s.namespace,
		},
	}
	s.fillLease(lease, value, ttl, now)
	_, err := leases.Create(ctx, lease, metav1.CreateOptions{})
	if err == nil {
		return true, nil
	}
	if !errors.IsAlreadyExists(err) {
		return false, err
	}

	// 2. lease exists, only an expired one can be taken over
	old, err := leases.Get(ctx, key, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			// deleted in between, the next attempt will create it
			return false, nil
		}
		return false, err
	}
	if !leaseExpired(old, now) {
		return false, nil
	}

	// 3. update with the observed resource version, a concurrent takeover
	// makes this fail with a conflict
	var transitions int32
	if old.Spec.LeaseTransitions != nil {
		transitions = *old.Spec.LeaseTransitions
	}
	transitions++
	s.fillLease(old, value, ttl, now)
	old.Spec.LeaseTransitions = &transitions
	if _, err := leases.Update(ctx, old, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) || errors.IsNotFound(err) {
			return false, nil
		}
		internal.GetLogger().Printf("Failed to take over lease[%s], err: %v", key, err)
		return false, err
	}
	return true, nil
}

func (s *K8sStore) Delete(ctx context.Context, key string) error {
	err := s.client.CoordinationV1().Leases(s.namespace).Delete(ctx, key, metav1.DeleteOptions{})
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	return nil
}

func (s *K8sStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	leases := s.client.CoordinationV1().Leases(s.namespace)
	lease, err := leases.Get(ctx, key, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != value {
		return false, nil
	}
	if leaseExpired(lease, s.clock.Now()) {
		return false, nil
	}

	resourceVersion := lease.ResourceVersion
	err = leases.Delete(ctx, key, metav1.DeleteOptions{
		Preconditions: &metav1.Preconditions{ResourceVersion: &resourceVersion},
	})
	if err != nil {
		if errors.IsConflict(err) || errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *K8sStore) fillLease(lease *coordinationv1.Lease, value string, ttl time.Duration, now time.Time) {
	holder := value
	seconds := int32(leaseSeconds(ttl))
	stamp := metav1.NewMicroTime(now)

	if lease.Annotations == nil {
		lease.Annotations = make(map[string]string)
	}
	lease.Annotations[ExpireAtAnnotation] = now.Add(ttl).UTC().Format(time.RFC3339Nano)
	lease.Spec.HolderIdentity = &holder
	lease.Spec.LeaseDurationSeconds = &seconds
	lease.Spec.AcquireTime = &stamp
	lease.Spec.RenewTime = &stamp
}

func leaseExpired(lease *coordinationv1.Lease, now time.Time) bool {
	if v, ok := lease.Annotations[ExpireAtAnnotation]; ok {
		if expireAt, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return !expireAt.After(now)
		}
	}
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return true
	}
	duration := time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second
	return !lease.Spec.RenewTime.Add(duration).After(now)
}
