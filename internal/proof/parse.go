package proof

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	x402types "github.com/coinbase/x402/go/types"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/crawl"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
)

const (
	// HeaderPaymentSignature carries x402 v2 payloads.
	HeaderPaymentSignature = "Payment-Signature"
	// HeaderXPayment carries x402 v1 payloads.
	HeaderXPayment = "X-Payment"
)

// Headers lists every header that may carry a proof. None of them may be
// forwarded upstream.
var Headers = []string{HeaderPaymentSignature, HeaderXPayment, "Authorization"}

// FromRequest parses the proof carried by req.
func FromRequest(req *crawl.Request) (Proof, error) {
	return Parse(req.Header())
}

// Parse looks for a structured payload first, then a bearer token. It returns
// a failure.ProofAbsent error when neither is present and failure.ProofMalformed
// when a header is present but cannot be decoded.
func Parse(h http.Header) (Proof, error) {
	for _, name := range []string{HeaderPaymentSignature, HeaderXPayment} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return decodePayment(name, v)
		}
	}

	auth := strings.TrimSpace(h.Get("Authorization"))
	if auth == "" {
		return nil, failure.New(failure.ProofAbsent, "no payment header")
	}
	scheme, token, _ := strings.Cut(auth, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return nil, failure.New(failure.ProofAbsent, "authorization scheme %q carries no payment", scheme)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, failure.New(failure.ProofMalformed, "empty bearer token")
	}
	return Token{Value: token}, nil
}

type wireAuthorization struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Value       string   `json:"value"`
	ValidAfter  unixTime `json:"validAfter"`
	ValidBefore unixTime `json:"validBefore"`
	Nonce       string   `json:"nonce"`
}

// schemePayload is the exact-scheme body both versions carry under "payload".
type schemePayload struct {
	Signature     string            `json:"signature"`
	Transaction   string            `json:"transaction"`
	TxHash        string            `json:"txHash"`
	Authorization wireAuthorization `json:"authorization"`
}

// envelope is the version independent part of a payment header.
type envelope struct {
	scheme   string
	network  string
	resource string
	accepted *x402types.PaymentRequirements
	payload  map[string]interface{}
}

// decodeEnvelope reads v1 payloads, which carry scheme and network at the
// top level, and v2 payloads, which nest them under "accepted".
func decodeEnvelope(version int, decoded []byte) (envelope, error) {
	if version == 1 {
		v1, err := x402types.ToPaymentPayloadV1(decoded)
		if err != nil {
			return envelope{}, err
		}
		return envelope{scheme: v1.GetScheme(), network: v1.GetNetwork(), payload: v1.GetPayload()}, nil
	}

	v2, err := x402types.ToPaymentPayload(decoded)
	if err != nil {
		return envelope{}, err
	}
	e := envelope{
		scheme:   v2.GetScheme(),
		network:  v2.GetNetwork(),
		accepted: &v2.Accepted,
		payload:  v2.GetPayload(),
	}
	if v2.Resource != nil {
		e.resource = v2.Resource.URL
	}
	return e, nil
}

func decodeSchemePayload(m map[string]interface{}) (schemePayload, error) {
	var sp schemePayload
	if len(m) == 0 {
		return sp, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sp, err
	}
	err = json.Unmarshal(b, &sp)
	return sp, err
}

func decodePayment(header, raw string) (*Payment, error) {
	decoded, err := decodeBase64(raw)
	if err != nil {
		return nil, failure.Wrap(failure.ProofMalformed, err, "%s is not base64", header)
	}
	decoded = bytes.TrimSpace(decoded)

	version, err := x402types.DetectVersion(decoded)
	if err != nil {
		return nil, failure.Wrap(failure.ProofMalformed, err, "%s has no x402 version", header)
	}
	env, err := decodeEnvelope(version, decoded)
	if err != nil {
		return nil, failure.Wrap(failure.ProofMalformed, err, "%s is not a v%d payment payload", header, version)
	}
	sp, err := decodeSchemePayload(env.payload)
	if err != nil {
		return nil, failure.Wrap(failure.ProofMalformed, err, "%s: unreadable %s payload", header, env.scheme)
	}

	auth := sp.Authorization
	p := &Payment{
		Version:     version,
		Scheme:      env.scheme,
		Network:     env.network,
		TxHash:      firstNonEmpty(sp.Transaction, sp.TxHash),
		Nonce:       auth.Nonce,
		Payer:       auth.From,
		PayTo:       auth.To,
		Amount:      auth.Value,
		ValidAfter:  int64(auth.ValidAfter),
		ValidBefore: int64(auth.ValidBefore),
		Resource:    env.resource,
		Header:      header,
		Raw:         raw,
		Decoded:     json.RawMessage(decoded),
	}
	if a := env.accepted; a != nil {
		p.Amount = firstNonEmpty(p.Amount, a.Amount)
		p.PayTo = firstNonEmpty(p.PayTo, a.PayTo)
	}

	switch {
	case p.Scheme == "":
		return nil, failure.New(failure.ProofMalformed, "%s: missing scheme", header)
	case p.Network == "":
		return nil, failure.New(failure.ProofMalformed, "%s: missing network", header)
	case p.TxHash == "" && p.Nonce == "":
		return nil, failure.New(failure.ProofMalformed, "%s: no settlement reference", header)
	case p.Nonce != "" && p.Payer == "":
		return nil, failure.New(failure.ProofMalformed, "%s: authorization nonce without payer", header)
	}
	return p, nil
}

func decodeBase64(s string) ([]byte, error) {
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// unixTime decodes unix seconds sent either as a JSON number or a string.
type unixTime int64

func (u *unixTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*u = unixTime(n)
	return nil
}
