// Package license decides whether a publisher may be served.
package license

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
)

// ErrNotFound is returned by a Lookup with no record for the owner.
var ErrNotFound = errors.New("license not found")

// License is a publisher's standing grant. It is owned by the
// publisher-management service and only read here.
type License struct {
	Owner     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Valid reports whether the grant is active and unexpired at now.
func (l License) Valid(now time.Time) bool {
	if !l.Active {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// Lookup fetches the license for an owner address.
type Lookup interface {
	Lookup(ctx context.Context, owner string) (License, error)
}

// Status is the outcome of a license check.
type Status string

const (
	Active   Status = "Active"
	Inactive Status = "Inactive"
	Unknown  Status = "Unknown"
)

// Gate maps license records to a serve decision.
type Gate struct {
	lookup       Lookup
	allowUnknown bool
	now          func() time.Time
}

// NewGate builds a Gate. allowUnknown lets publishers with no record
// through and is only meant for demo deployments that never settle.
func NewGate(lookup Lookup, allowUnknown bool) *Gate {
	return &Gate{lookup: lookup, allowUnknown: allowUnknown, now: time.Now}
}

// Check returns the license status for owner. Lookup failures other than
// ErrNotFound are returned as errors.
func (g *Gate) Check(ctx context.Context, owner string) (Status, error) {
	owner = NormalizeOwner(owner)
	if owner == "" || g.lookup == nil {
		return Unknown, nil
	}
	l, err := g.lookup.Lookup(ctx, owner)
	switch {
	case errors.Is(err, ErrNotFound):
		return Unknown, nil
	case err != nil:
		return "", err
	case l.Valid(g.now()):
		return Active, nil
	default:
		return Inactive, nil
	}
}

// Permits reports whether content may be released for status.
func (g *Gate) Permits(status Status) bool {
	switch status {
	case Active:
		return true
	case Unknown:
		return g.allowUnknown
	}
	return false
}

// Allow combines Check and Permits.
func (g *Gate) Allow(ctx context.Context, owner string) (bool, Status, error) {
	status, err := g.Check(ctx, owner)
	if err != nil {
		metrics.LicenseChecksTotal.WithLabelValues("error").Inc()
		return false, status, err
	}
	metrics.LicenseChecksTotal.WithLabelValues(string(status)).Inc()
	return g.Permits(status), status, nil
}

// NormalizeOwner lower-cases an owner address so lookups are case-insensitive.
func NormalizeOwner(owner string) string {
	return strings.ToLower(strings.TrimSpace(owner))
}

// Static is a fixed in-memory Lookup.
type Static map[string]License

func (s Static) Lookup(_ context.Context, owner string) (License, error) {
	for k, l := range s {
		if NormalizeOwner(k) == owner {
			return l, nil
		}
	}
	return License{}, ErrNotFound
}
