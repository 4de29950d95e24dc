// Package proof extracts payment assertions from inbound requests.
package proof

import (
	"encoding/json"
	"strings"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
)

// Proof is a payment assertion carried by a request. It is either a Token or
// a *Payment.
type Proof interface {
	// Reference is the settlement reference used for replay protection.
	Reference() string
	// Kind names the variant for logs and metrics.
	Kind() string

	isProof()
}

// Token is an opaque bearer credential, validated by lookup only.
type Token struct {
	Value string
}

func (t Token) Reference() string { return "token:" + t.Value }
func (t Token) Kind() string      { return "token" }
func (Token) isProof()            {}

// Payment is a structured, self-describing x402 payment payload.
type Payment struct {
	Version int
	Scheme  string
	Network string

	// TxHash is the settlement transaction the payer claims. It is unsigned
	// and counts only once a facilitator confirms it.
	TxHash string
	Nonce  string

	Payer  string
	PayTo  string
	Amount string

	// ValidAfter and ValidBefore bound the authorization in unix seconds.
	// Zero means unbounded.
	ValidAfter  int64
	ValidBefore int64

	// Resource is the URL the payer says it paid for, if stated.
	Resource string

	// Header is the header the payload arrived in.
	Header string
	// Raw is the encoded header value as received.
	Raw string
	// Decoded is the JSON payload, forwarded to the settlement verifier.
	Decoded json.RawMessage
}

// Reference keys a signed authorization by chain, payer and nonce, the
// fields the signature covers. Network aliases collapse to one chain id.
// Without a nonce it falls back to the claimed transaction.
func (p *Payment) Reference() string {
	if p.Nonce != "" {
		chain := strings.ToLower(strings.TrimSpace(pricing.ChainID(p.Network)))
		return "nonce:" + chain + ":" + strings.ToLower(p.Payer) + ":" + strings.ToLower(p.Nonce)
	}
	return TxReference(p.TxHash)
}

// TxReference keys a settled transaction.
func TxReference(hash string) string {
	return "tx:" + strings.ToLower(strings.TrimSpace(hash))
}

func (p *Payment) Kind() string { return "payment" }
func (*Payment) isProof()      {}
