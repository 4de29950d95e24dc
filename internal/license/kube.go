package license

import (
	"context"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"

	x402v1alpha1 "github.com/razvanmacovei/x402-crawl-gateway/api/v1alpha1"
)

// OwnerField indexes PublisherLicense objects by normalized owner.
const OwnerField = "spec.owner"

// OwnerIndex is the field indexer for OwnerField.
func OwnerIndex(obj client.Object) []string {
	pl, ok := obj.(*x402v1alpha1.PublisherLicense)
	if !ok || pl.Spec.Owner == "" {
		return nil
	}
	return []string{NormalizeOwner(pl.Spec.Owner)}
}

// KubeLookup reads PublisherLicense resources through a cached client.
type KubeLookup struct {
	Reader client.Reader
	now    func() time.Time
}

func NewKubeLookup(reader client.Reader) *KubeLookup {
	return &KubeLookup{Reader: reader, now: time.Now}
}

// Lookup returns the best license for owner: a valid one if any exists,
// otherwise the most recently updated.
func (k *KubeLookup) Lookup(ctx context.Context, owner string) (License, error) {
	var list x402v1alpha1.PublisherLicenseList
	if err := k.Reader.List(ctx, &list, client.MatchingFields{OwnerField: NormalizeOwner(owner)}); err != nil {
		return License{}, fmt.Errorf("list publisher licenses: %w", err)
	}
	if len(list.Items) == 0 {
		return License{}, ErrNotFound
	}

	now := k.now()
	var best License
	for i, item := range list.Items {
		l := fromResource(&item)
		if l.Valid(now) {
			return l, nil
		}
		if i == 0 || l.UpdatedAt.After(best.UpdatedAt) {
			best = l
		}
	}
	return best, nil
}

func fromResource(pl *x402v1alpha1.PublisherLicense) License {
	l := License{
		Owner:     NormalizeOwner(pl.Spec.Owner),
		Active:    pl.Spec.Active,
		CreatedAt: pl.CreationTimestamp.Time,
		UpdatedAt: pl.CreationTimestamp.Time,
	}
	if pl.Status.LastUpdated != nil {
		l.UpdatedAt = pl.Status.LastUpdated.Time
	}
	if pl.Spec.ExpiresAt != nil {
		t := pl.Spec.ExpiresAt.Time
		l.ExpiresAt = &t
	}
	return l
}
