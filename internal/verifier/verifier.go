// Package verifier decides whether a payment proof satisfies a requirement.
//
// Three strategies exist: AllowList accepts legacy bearer tokens by lookup,
// Settlement asks an external facilitator to confirm structured payloads, and
// Dispatch routes each proof variant to one of the other two. Every accepted
// proof is claimed in a replay.Store before it is reported valid.
package verifier

import (
	"context"
	"errors"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/replay"
)

// Mode names a verifier strategy in configuration.
type Mode string

const (
	ModeAllowList  Mode = "allowlist"
	ModeSettlement Mode = "settlement"
	ModeHybrid     Mode = "hybrid"
)

// Settles reports whether the mode moves real money.
func (m Mode) Settles() bool { return m == ModeSettlement || m == ModeHybrid }

// Context carries publisher-scoped verification settings.
type Context struct {
	Publisher string
	// FacilitatorURL overrides the default settlement verifier.
	FacilitatorURL string
}

// Receipt describes an accepted proof.
type Receipt struct {
	Verifier  string `json:"verifier"`
	Reference string `json:"reference"`
	Payer     string `json:"payer,omitempty"`
	Amount    string `json:"amount"`
	Network   string `json:"network"`
	TxHash    string `json:"transaction,omitempty"`
}

// Verifier accepts or rejects a proof. Rejections are *failure.Error values
// whose code names the reason.
type Verifier interface {
	Verify(ctx context.Context, p proof.Proof, req pricing.Requirement, vc Context) (*Receipt, error)
}

// Dispatch sends tokens to one verifier and structured payments to another.
type Dispatch struct {
	Tokens   Verifier
	Payments Verifier
}

func (d *Dispatch) Verify(ctx context.Context, p proof.Proof, req pricing.Requirement, vc Context) (*Receipt, error) {
	var v Verifier
	switch p.(type) {
	case proof.Token:
		v = d.Tokens
	case *proof.Payment:
		v = d.Payments
	}
	if v == nil {
		return nil, failure.New(failure.ProofRejected, "%s proofs are not accepted", p.Kind())
	}
	return v.Verify(ctx, p, req, vc)
}

// claim records the receipt's reference exactly once.
func claim(ctx context.Context, store replay.Store, r *Receipt, req pricing.Requirement) error {
	if store == nil {
		return failure.New(failure.InternalError, "no replay store configured")
	}
	err := store.Claim(ctx, replay.Claim{
		Reference: r.Reference,
		Payer:     r.Payer,
		Amount:    r.Amount,
		Resource:  req.Resource,
	})
	switch {
	case err == nil:
		metrics.ReplayClaimsTotal.WithLabelValues("claimed").Inc()
		return nil
	case errors.Is(err, replay.ErrAlreadyClaimed):
		metrics.ReplayClaimsTotal.WithLabelValues("duplicate").Inc()
		return failure.New(failure.ProofAlreadyUsed, "reference %s already used", r.Reference)
	default:
		metrics.ReplayClaimsTotal.WithLabelValues("error").Inc()
		return failure.Wrap(failure.InternalError, err, "claim %s", r.Reference)
	}
}
