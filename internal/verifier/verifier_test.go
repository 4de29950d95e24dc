package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/replay"
)

const (
	payTo = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	payer = "0x2222222222222222222222222222222222222222"
)

var fixedNow = time.Unix(1_800_000_000, 0)

func requirement() pricing.Requirement {
	return pricing.Requirement{
		Scheme:   "exact",
		Network:  "eip155:84532",
		Amount:   "10000",
		Resource: "https://news.example.com/article/1",
		Asset:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:    payTo,
		Timeout:  300,
	}
}

func payment(mut func(p *proof.Payment)) *proof.Payment {
	p := &proof.Payment{
		Version:     2,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Nonce:       "0x01",
		Payer:       payer,
		PayTo:       "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Amount:      "10000",
		ValidBefore: fixedNow.Unix() + 60,
		Decoded:     json.RawMessage(`{"x402Version":2}`),
	}
	if mut != nil {
		mut(p)
	}
	return p
}

func facilitator(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func accepting(calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"isValid":true,"payer":"` + payer + `"}`))
	}
}

func newSettlement(url string, store replay.Store) *Settlement {
	return NewSettlement(SettlementOptions{
		FacilitatorURL: url,
		Timeout:        200 * time.Millisecond,
		Now:            func() time.Time { return fixedNow },
	}, store)
}

func codeOf(t *testing.T, err error) failure.Code {
	t.Helper()
	code, ok := failure.CodeOf(err)
	if !ok {
		t.Fatalf("error %v carries no failure code", err)
	}
	return code
}

func TestSettlementAccepts(t *testing.T) {
	var gotBody struct {
		Proof       json.RawMessage     `json:"proof"`
		Requirement pricing.Requirement `json:"requirement"`
	}
	srv := facilitator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("decode verify body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	store := replay.NewMemory()
	r, err := newSettlement(srv.URL+"/", store).Verify(context.Background(), payment(nil), requirement(), Context{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if r.Reference != "nonce:eip155:84532:"+payer+":0x01" {
		t.Errorf("Reference = %q", r.Reference)
	}
	if string(gotBody.Proof) != `{"x402Version":2}` || gotBody.Requirement.Amount != "10000" {
		t.Errorf("facilitator got %s / %+v", gotBody.Proof, gotBody.Requirement)
	}
	if store.Len() != 1 {
		t.Errorf("claims = %d, want 1", store.Len())
	}
}

func TestSettlementRouteFacilitatorWins(t *testing.T) {
	var calls atomic.Int32
	srv := facilitator(t, accepting(&calls))
	v := newSettlement("http://unused.invalid", replay.NewMemory())

	if _, err := v.Verify(context.Background(), payment(nil), requirement(), Context{FacilitatorURL: srv.URL}); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("route facilitator called %d times", calls.Load())
	}
}

func TestSettlementRejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		proof   *proof.Payment
		req     func(r *pricing.Requirement)
		want    failure.Code
		calls   int32
	}{
		{
			name:  "expired",
			proof: payment(func(p *proof.Payment) { p.ValidBefore = fixedNow.Unix() }),
			want:  failure.ProofExpired,
		},
		{
			name:  "not yet valid",
			proof: payment(func(p *proof.Payment) { p.ValidAfter = fixedNow.Unix() + 10 }),
			want:  failure.ProofRejected,
		},
		{
			name:  "wrong network",
			proof: payment(func(p *proof.Payment) { p.Network = "base" }),
			want:  failure.ProofRejected,
		},
		{
			name:  "wrong resource",
			proof: payment(func(p *proof.Payment) { p.Resource = "https://news.example.com/article/2" }),
			want:  failure.ProofRejected,
		},
		{
			name: "facilitator says no",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"isValid":false,"invalidReason":"insufficient_funds"}`))
			},
			want:  failure.ProofRejected,
			calls: 1,
		},
		{
			name: "facilitator non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad signature", http.StatusBadRequest)
			},
			want:  failure.ProofRejected,
			calls: 1,
		},
		{
			name: "facilitator garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			},
			want:  failure.VerifierUnreachable,
			calls: 1,
		},
		{
			name:  "underpaid",
			proof: payment(func(p *proof.Payment) { p.Amount = "9999" }),
			want:  failure.ProofAmountInsufficient,
			calls: 1,
		},
		{
			name:  "price rose since challenge",
			req:   func(r *pricing.Requirement) { r.Amount = "50000" },
			want:  failure.ProofAmountInsufficient,
			calls: 1,
		},
		{
			name:  "wrong recipient",
			proof: payment(func(p *proof.Payment) { p.PayTo = "0x9999999999999999999999999999999999999999" }),
			want:  failure.ProofRecipientMismatch,
			calls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			handler := tt.handler
			if handler == nil {
				handler = accepting(nil)
			}
			srv := facilitator(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				handler(w, r)
			})

			p := tt.proof
			if p == nil {
				p = payment(nil)
			}
			req := requirement()
			if tt.req != nil {
				tt.req(&req)
			}

			store := replay.NewMemory()
			_, err := newSettlement(srv.URL, store).Verify(context.Background(), p, req, Context{})
			if got := codeOf(t, err); got != tt.want {
				t.Errorf("code = %q, want %q (%v)", got, tt.want, err)
			}
			if calls.Load() != tt.calls {
				t.Errorf("facilitator calls = %d, want %d", calls.Load(), tt.calls)
			}
			if store.Len() != 0 {
				t.Errorf("rejected proof wrote %d claims", store.Len())
			}
		})
	}
}

func TestSettlementTimeoutWritesNoClaim(t *testing.T) {
	srv := facilitator(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	store := replay.NewMemory()
	start := time.Now()
	_, err := newSettlement(srv.URL, store).Verify(context.Background(), payment(nil), requirement(), Context{})
	if got := codeOf(t, err); got != failure.VerifierUnreachable {
		t.Fatalf("code = %q, want VerifierUnreachable", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("verify took %s, timeout not enforced", elapsed)
	}
	if store.Len() != 0 {
		t.Errorf("timeout wrote %d claims", store.Len())
	}
}

func TestSettlementUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newSettlement(addr, replay.NewMemory()).Verify(context.Background(), payment(nil), requirement(), Context{})
	if got := codeOf(t, err); got != failure.VerifierUnreachable {
		t.Errorf("code = %q, want VerifierUnreachable", got)
	}

	_, err = newSettlement("", replay.NewMemory()).Verify(context.Background(), payment(nil), requirement(), Context{})
	if got := codeOf(t, err); got != failure.VerifierUnreachable {
		t.Errorf("no facilitator: code = %q", got)
	}
}

func TestSettlementReplayRace(t *testing.T) {
	srv := facilitator(t, accepting(nil))
	v := newSettlement(srv.URL, replay.NewMemory())

	const n = 16
	var valid, used atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), payment(nil), requirement(), Context{})
			switch {
			case err == nil:
				valid.Add(1)
			case failure.Is(err, failure.ProofAlreadyUsed):
				used.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if valid.Load() != 1 || used.Load() != n-1 {
		t.Errorf("valid=%d used=%d, want 1 and %d", valid.Load(), used.Load(), n-1)
	}
}

func TestSettlementReplayKeyedByAuthorization(t *testing.T) {
	srv := facilitator(t, accepting(nil))
	v := newSettlement(srv.URL, replay.NewMemory())

	if _, err := v.Verify(context.Background(), payment(nil), requirement(), Context{}); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}

	replays := []struct {
		name string
		mut  func(p *proof.Payment)
	}{
		{"chain id instead of alias", func(p *proof.Payment) { p.Network = "eip155:84532" }},
		{"alias in upper case", func(p *proof.Payment) { p.Network = "BASE-SEPOLIA" }},
		{"added tx hash", func(p *proof.Payment) { p.TxHash = "0xdeadbeef" }},
		{"other tx hash", func(p *proof.Payment) { p.TxHash = "0xfeedface" }},
		{"nonce in upper case", func(p *proof.Payment) { p.Nonce = "0X01" }},
	}
	for _, tt := range replays {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), payment(tt.mut), requirement(), Context{})
			if got := codeOf(t, err); got != failure.ProofAlreadyUsed {
				t.Errorf("code = %q, want ProofAlreadyUsed (%v)", got, err)
			}
		})
	}
}

func TestSettlementTransactionMustBeConfirmed(t *testing.T) {
	respond := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}
	}
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    failure.Code
		ref     string
	}{
		{
			name:    "unconfirmed",
			handler: respond(`{"isValid":true}`),
			want:    failure.ProofRejected,
		},
		{
			name:    "confirmed",
			handler: respond(`{"isValid":true,"transaction":"0xABC"}`),
			ref:     "tx:0xabc",
		},
		{
			name:    "different transaction",
			handler: respond(`{"isValid":true,"transaction":"0xdef"}`),
			want:    failure.ProofRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := facilitator(t, tt.handler)
			store := replay.NewMemory()
			p := payment(func(p *proof.Payment) {
				p.Nonce = ""
				p.TxHash = "0xabc"
			})

			r, err := newSettlement(srv.URL, store).Verify(context.Background(), p, requirement(), Context{})
			if tt.want != "" {
				if got := codeOf(t, err); got != tt.want {
					t.Errorf("code = %q, want %q (%v)", got, tt.want, err)
				}
				if store.Len() != 0 {
					t.Errorf("rejected proof wrote %d claims", store.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if r.Reference != tt.ref || r.TxHash != "0xABC" {
				t.Errorf("receipt = %+v, want reference %q", r, tt.ref)
			}
		})
	}
}

func TestSettlementRejectsTokens(t *testing.T) {
	_, err := newSettlement("http://unused.invalid", replay.NewMemory()).Verify(context.Background(), proof.Token{Value: "x"}, requirement(), Context{})
	if got := codeOf(t, err); got != failure.ProofRejected {
		t.Errorf("code = %q", got)
	}
}

type authFunc func(ctx context.Context, method string, target *url.URL) (map[string]string, error)

func (f authFunc) AuthHeaders(ctx context.Context, method string, target *url.URL) (map[string]string, error) {
	return f(ctx, method, target)
}

func TestSettlementAuthHeaders(t *testing.T) {
	srv := facilitator(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer signed" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	v := NewSettlement(SettlementOptions{
		FacilitatorURL: srv.URL,
		Now:            func() time.Time { return fixedNow },
		Auth: authFunc(func(_ context.Context, method string, target *url.URL) (map[string]string, error) {
			if method != http.MethodPost || target.Path != "/verify" {
				return nil, errors.New("unexpected target")
			}
			return map[string]string{"Authorization": "Bearer signed"}, nil
		}),
	}, replay.NewMemory())

	if _, err := v.Verify(context.Background(), payment(nil), requirement(), Context{}); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

type tokenTable map[string]bool

func (t tokenTable) ValidToken(_ context.Context, token string) (bool, error) {
	if token == "boom" {
		return false, errors.New("db down")
	}
	return t[token], nil
}

func TestAllowList(t *testing.T) {
	store := replay.NewMemory()
	v := NewAllowList([]string{"demo-token"}, tokenTable{"0xtxhash": true}, store)
	ctx := context.Background()

	if _, err := v.Verify(ctx, proof.Token{Value: "demo-token"}, requirement(), Context{}); err != nil {
		t.Fatalf("static token: %v", err)
	}
	r, err := v.Verify(ctx, proof.Token{Value: "0xtxhash"}, requirement(), Context{})
	if err != nil {
		t.Fatalf("looked-up token: %v", err)
	}
	if r.Amount != "10000" || r.Reference != "token:0xtxhash" {
		t.Errorf("receipt = %+v", r)
	}

	tests := []struct {
		name  string
		proof proof.Proof
		want  failure.Code
	}{
		{"replayed", proof.Token{Value: "0xtxhash"}, failure.ProofAlreadyUsed},
		{"unknown", proof.Token{Value: "nope"}, failure.ProofRejected},
		{"lookup down", proof.Token{Value: "boom"}, failure.VerifierUnreachable},
		{"structured", payment(nil), failure.ProofRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.proof, requirement(), Context{})
			if got := codeOf(t, err); got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	srv := facilitator(t, accepting(nil))
	store := replay.NewMemory()
	d := &Dispatch{
		Tokens:   NewAllowList([]string{"demo"}, nil, store),
		Payments: newSettlement(srv.URL, store),
	}
	ctx := context.Background()

	tok, err := d.Verify(ctx, proof.Token{Value: "demo"}, requirement(), Context{})
	if err != nil || tok.Verifier != string(ModeAllowList) {
		t.Fatalf("token dispatch = %+v, %v", tok, err)
	}
	pay, err := d.Verify(ctx, payment(nil), requirement(), Context{})
	if err != nil || pay.Verifier != string(ModeSettlement) {
		t.Fatalf("payment dispatch = %+v, %v", pay, err)
	}

	_, err = (&Dispatch{Payments: d.Payments}).Verify(ctx, proof.Token{Value: "demo"}, requirement(), Context{})
	if got := codeOf(t, err); got != failure.ProofRejected {
		t.Errorf("missing branch code = %q", got)
	}
}

func TestModeSettles(t *testing.T) {
	if ModeAllowList.Settles() || !ModeSettlement.Settles() || !ModeHybrid.Settles() {
		t.Error("unexpected Settles() results")
	}
}
