package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/replay"
)

// DefaultVerifyTimeout bounds one facilitator call.
const DefaultVerifyTimeout = 5 * time.Second

const maxVerifyResponse = 1 << 20

// AuthProvider adds credentials to facilitator calls.
type AuthProvider interface {
	AuthHeaders(ctx context.Context, method string, target *url.URL) (map[string]string, error)
}

// SettlementOptions configures a Settlement verifier.
type SettlementOptions struct {
	// FacilitatorURL is used when the route does not name its own.
	FacilitatorURL string
	Timeout        time.Duration
	Client         *http.Client
	Auth           AuthProvider
	// Now overrides the clock for expiry checks.
	Now func() time.Time
}

// Settlement verifies structured payloads against an external facilitator
// and re-checks amount and recipient locally. It never fails open.
type Settlement struct {
	opts   SettlementOptions
	replay replay.Store
}

func NewSettlement(opts SettlementOptions, store replay.Store) *Settlement {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultVerifyTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Settlement{opts: opts, replay: store}
}

type verifyRequest struct {
	Proof       json.RawMessage     `json:"proof"`
	Requirement pricing.Requirement `json:"requirement"`
}

type verifyResponse struct {
	IsValid       *bool  `json:"isValid"`
	Valid         *bool  `json:"valid"`
	InvalidReason string `json:"invalidReason"`
	Payer         string `json:"payer"`
	Transaction   string `json:"transaction"`
}

func (v verifyResponse) rejected() bool {
	return (v.IsValid != nil && !*v.IsValid) || (v.Valid != nil && !*v.Valid)
}

func (s *Settlement) Verify(ctx context.Context, p proof.Proof, req pricing.Requirement, vc Context) (*Receipt, error) {
	pay, ok := p.(*proof.Payment)
	if !ok {
		return nil, failure.New(failure.ProofRejected, "settlement requires a structured payment")
	}

	now := s.opts.Now().Unix()
	if pay.ValidBefore != 0 && now >= pay.ValidBefore {
		return nil, failure.New(failure.ProofExpired, "authorization expired at %d", pay.ValidBefore)
	}
	if pay.ValidAfter != 0 && now < pay.ValidAfter {
		return nil, failure.New(failure.ProofRejected, "authorization not valid before %d", pay.ValidAfter)
	}
	if !strings.EqualFold(pay.Scheme, req.Scheme) {
		return nil, failure.New(failure.ProofRejected, "scheme %q, want %q", pay.Scheme, req.Scheme)
	}
	if !pricing.SameNetwork(pay.Network, req.Network) {
		return nil, failure.New(failure.ProofRejected, "network %q, want %q", pay.Network, req.Network)
	}
	if pay.Resource != "" && pay.Resource != req.Resource {
		return nil, failure.New(failure.ProofRejected, "payment is for %s", pay.Resource)
	}

	vr, err := s.callFacilitator(ctx, pay, req, vc)
	if err != nil {
		return nil, err
	}

	if err := checkAmount(pay.Amount, req.Amount); err != nil {
		return nil, err
	}
	if !sameAddress(pay.PayTo, req.PayTo) {
		return nil, failure.New(failure.ProofRecipientMismatch, "paid %q, want %q", pay.PayTo, req.PayTo)
	}

	ref, err := settlementReference(pay, vr)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		Verifier:  string(ModeSettlement),
		Reference: ref,
		Payer:     firstNonEmpty(pay.Payer, vr.Payer),
		Amount:    pay.Amount,
		Network:   req.Network,
		TxHash:    vr.Transaction,
	}
	if err := claim(ctx, s.replay, r, req); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Settlement) callFacilitator(ctx context.Context, pay *proof.Payment, req pricing.Requirement, vc Context) (verifyResponse, error) {
	var vr verifyResponse

	base := firstNonEmpty(vc.FacilitatorURL, s.opts.FacilitatorURL)
	if base == "" {
		return vr, failure.New(failure.VerifierUnreachable, "no facilitator configured")
	}
	target, err := url.Parse(strings.TrimRight(base, "/") + "/verify")
	if err != nil {
		return vr, failure.Wrap(failure.VerifierUnreachable, err, "facilitator url")
	}

	body, err := json.Marshal(verifyRequest{Proof: pay.Decoded, Requirement: req})
	if err != nil {
		return vr, failure.Wrap(failure.InternalError, err, "marshal verify request")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return vr, failure.Wrap(failure.VerifierUnreachable, err, "build verify request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.opts.Auth != nil {
		headers, err := s.opts.Auth.AuthHeaders(ctx, http.MethodPost, target)
		if err != nil {
			return vr, failure.Wrap(failure.VerifierUnreachable, err, "facilitator auth")
		}
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := s.opts.Client.Do(httpReq)
	if err != nil {
		return vr, failure.Wrap(failure.VerifierUnreachable, err, "POST %s", target.Redacted())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponse))
	if err != nil {
		return vr, failure.Wrap(failure.VerifierUnreachable, err, "read verify response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return vr, failure.New(failure.ProofRejected, "facilitator returned %d: %s", resp.StatusCode, truncate(respBody, 200))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return vr, nil
	}
	if err := json.Unmarshal(respBody, &vr); err != nil {
		return vr, failure.Wrap(failure.VerifierUnreachable, err, "malformed verify response")
	}
	if vr.rejected() {
		return vr, failure.New(failure.ProofRejected, "facilitator rejected payment: %s", vr.InvalidReason)
	}
	return vr, nil
}

// settlementReference picks the replay key. A signed authorization is keyed
// by its nonce. A transaction hash from the payload is trusted only when the
// facilitator reports the same transaction.
func settlementReference(pay *proof.Payment, vr verifyResponse) (string, error) {
	confirmed := strings.TrimSpace(vr.Transaction)
	if pay.TxHash != "" && confirmed != "" && !strings.EqualFold(pay.TxHash, confirmed) {
		return "", failure.New(failure.ProofRejected, "transaction %s does not match settled %s", pay.TxHash, confirmed)
	}
	if pay.Nonce != "" {
		return pay.Reference(), nil
	}
	if confirmed == "" {
		return "", failure.New(failure.ProofRejected, "facilitator did not confirm transaction %s", pay.TxHash)
	}
	return proof.TxReference(confirmed), nil
}

func checkAmount(paid, required string) error {
	want, ok := math.ParseBig256(required)
	if !ok {
		return failure.New(failure.InternalError, "invalid required amount %q", required)
	}
	got, ok := math.ParseBig256(paid)
	if !ok {
		return failure.New(failure.ProofAmountInsufficient, "invalid paid amount %q", paid)
	}
	if got.Cmp(want) < 0 {
		return failure.New(failure.ProofAmountInsufficient, "paid %s, want %s", got, want)
	}
	return nil
}

// sameAddress compares EVM addresses case-insensitively and anything else
// exactly.
func sameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return a == b
}

// AmountValue parses a smallest-unit amount for metrics.
func AmountValue(amount string) float64 {
	n, ok := math.ParseBig256(amount)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var (
	_ Verifier = (*Settlement)(nil)
	_ Verifier = (*AllowList)(nil)
	_ Verifier = (*Dispatch)(nil)
)
