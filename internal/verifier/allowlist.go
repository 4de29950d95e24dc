package verifier

import (
	"context"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/replay"
)

// TokenLookup answers whether a bearer token was issued.
type TokenLookup interface {
	ValidToken(ctx context.Context, token string) (bool, error)
}

// AllowList accepts bearer tokens found in a static set or a TokenLookup.
// It gives no binding to amount or recipient and must not be the only
// verifier of a settling deployment.
type AllowList struct {
	tokens map[string]struct{}
	lookup TokenLookup
	replay replay.Store
}

// NewAllowList builds an AllowList. lookup may be nil.
func NewAllowList(tokens []string, lookup TokenLookup, store replay.Store) *AllowList {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return &AllowList{tokens: set, lookup: lookup, replay: store}
}

func (a *AllowList) Verify(ctx context.Context, p proof.Proof, req pricing.Requirement, vc Context) (*Receipt, error) {
	tok, ok := p.(proof.Token)
	if !ok {
		return nil, failure.New(failure.ProofRejected, "allow-list accepts bearer tokens only")
	}

	known := false
	if _, ok := a.tokens[tok.Value]; ok {
		known = true
	} else if a.lookup != nil {
		found, err := a.lookup.ValidToken(ctx, tok.Value)
		if err != nil {
			return nil, failure.Wrap(failure.VerifierUnreachable, err, "token lookup")
		}
		known = found
	}
	if !known {
		return nil, failure.New(failure.ProofRejected, "unknown token")
	}

	r := &Receipt{
		Verifier:  string(ModeAllowList),
		Reference: tok.Reference(),
		Amount:    req.Amount,
		Network:   req.Network,
	}
	if err := claim(ctx, a.replay, r, req); err != nil {
		return nil, err
	}
	return r, nil
}
