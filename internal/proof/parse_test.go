package proof

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
)

const v2Payload = `{
  "x402Version": 2,
  "resource": {"url": "https://news.example.com/article/1"},
  "accepted": {"scheme": "exact", "network": "eip155:84532", "amount": "10000", "payTo": "0x1111111111111111111111111111111111111111"},
  "payload": {
    "signature": "0xsig",
    "authorization": {
      "from": "0x2222222222222222222222222222222222222222",
      "to": "0x1111111111111111111111111111111111111111",
      "value": "10000",
      "validAfter": "0",
      "validBefore": "1900000000",
      "nonce": "0xABCDEF"
    }
  }
}`

const v1Payload = `{
  "x402Version": 1,
  "scheme": "exact",
  "network": "base-sepolia",
  "payload": {"transaction": "0xDEADBEEF", "authorization": {"from": "0x3333333333333333333333333333333333333333", "value": "20000", "validBefore": 1900000000}}
}`

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestParseStructured(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderPaymentSignature, b64(v2Payload))

	p, err := Parse(h)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	pay, ok := p.(*Payment)
	if !ok {
		t.Fatalf("Parse() = %T, want *Payment", p)
	}
	if pay.Version != 2 || pay.Scheme != "exact" || pay.Network != "eip155:84532" {
		t.Errorf("header fields = v%d %s %s", pay.Version, pay.Scheme, pay.Network)
	}
	if pay.Amount != "10000" || pay.Payer != "0x2222222222222222222222222222222222222222" {
		t.Errorf("Amount/Payer = %s/%s", pay.Amount, pay.Payer)
	}
	if pay.ValidBefore != 1900000000 {
		t.Errorf("ValidBefore = %d", pay.ValidBefore)
	}
	if pay.Resource != "https://news.example.com/article/1" {
		t.Errorf("Resource = %q", pay.Resource)
	}
	want := "nonce:eip155:84532:0x2222222222222222222222222222222222222222:0xabcdef"
	if got := pay.Reference(); got != want {
		t.Errorf("Reference() = %q, want %q", got, want)
	}
}

func TestParseV1WithTransaction(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderXPayment, base64.RawURLEncoding.EncodeToString([]byte(v1Payload)))

	p, err := Parse(h)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	pay := p.(*Payment)
	if pay.Version != 1 || pay.Network != "base-sepolia" {
		t.Errorf("Version/Network = %d/%s", pay.Version, pay.Network)
	}
	if got := pay.Reference(); got != "tx:0xdeadbeef" {
		t.Errorf("Reference() = %q", got)
	}
	if pay.ValidBefore != 1900000000 {
		t.Errorf("numeric validBefore not decoded: %d", pay.ValidBefore)
	}
}

func TestReferenceIgnoresUnsignedFields(t *testing.T) {
	base := Payment{Network: "base-sepolia", Payer: "0xAbC", Nonce: "0x01"}
	want := "nonce:eip155:84532:0xabc:0x01"

	variants := []Payment{
		base,
		{Network: "eip155:84532", Payer: "0xabc", Nonce: "0x01"},
		{Network: "Base-Sepolia", Payer: "0xABC", Nonce: "0X01"},
		{Network: "base-sepolia", Payer: "0xabc", Nonce: "0x01", TxHash: "0xdeadbeef"},
	}
	for _, p := range variants {
		if got := p.Reference(); got != want {
			t.Errorf("%+v: Reference() = %q, want %q", p, got, want)
		}
	}

	if got := (&Payment{TxHash: "0xDEAD"}).Reference(); got != "tx:0xdead" {
		t.Errorf("transaction-only Reference() = %q", got)
	}
}

func TestParseOrder(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderXPayment, b64(v1Payload))
	h.Set(HeaderPaymentSignature, b64(v2Payload))
	h.Set("Authorization", "Bearer legacy")

	p, err := Parse(h)
	if err != nil {
		t.Fatal(err)
	}
	if pay := p.(*Payment); pay.Header != HeaderPaymentSignature {
		t.Errorf("Header = %q, want the v2 header first", pay.Header)
	}
}

func TestParseBearer(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer  0xfeedface ")

	p, err := Parse(h)
	if err != nil {
		t.Fatal(err)
	}
	tok, ok := p.(Token)
	if !ok || tok.Value != "0xfeedface" {
		t.Fatalf("Parse() = %#v", p)
	}
	if tok.Reference() != "token:0xfeedface" {
		t.Errorf("Reference() = %q", tok.Reference())
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   failure.Code
	}{
		{name: "nothing", want: failure.ProofAbsent},
		{name: "basic auth", header: "Authorization", value: "Basic dXNlcjpwYXNz", want: failure.ProofAbsent},
		{name: "empty bearer", header: "Authorization", value: "Bearer   ", want: failure.ProofMalformed},
		{name: "not base64", header: HeaderPaymentSignature, value: "%%%not-base64%%%", want: failure.ProofMalformed},
		{name: "not json", header: HeaderXPayment, value: b64("hello"), want: failure.ProofMalformed},
		{name: "no reference", header: HeaderXPayment, value: b64(`{"x402Version":1,"scheme":"exact","network":"base","payload":{"authorization":{"from":"0x1"}}}`), want: failure.ProofMalformed},
		{name: "no network", header: HeaderXPayment, value: b64(`{"x402Version":1,"scheme":"exact","payload":{"transaction":"0x1"}}`), want: failure.ProofMalformed},
		{name: "v2 without accepted", header: HeaderPaymentSignature, value: b64(`{"x402Version":2,"scheme":"exact","network":"base","payload":{"transaction":"0x1"}}`), want: failure.ProofMalformed},
		{name: "v2 resource not an object", header: HeaderPaymentSignature, value: b64(`{"x402Version":2,"resource":"https://a.example","accepted":{"scheme":"exact","network":"base"},"payload":{"transaction":"0x1"}}`), want: failure.ProofMalformed},
		{name: "payload not an object", header: HeaderXPayment, value: b64(`{"x402Version":1,"scheme":"exact","network":"base","payload":"0x1"}`), want: failure.ProofMalformed},
		{name: "nonce without payer", header: HeaderXPayment, value: b64(`{"x402Version":1,"scheme":"exact","network":"base","payload":{"authorization":{"nonce":"0x1"}}}`), want: failure.ProofMalformed},
		{name: "bad validBefore", header: HeaderXPayment, value: b64(`{"x402Version":1,"scheme":"exact","network":"base","payload":{"transaction":"0x1","authorization":{"validBefore":"soon"}}}`), want: failure.ProofMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set(tt.header, tt.value)
			}
			p, err := Parse(h)
			if err == nil {
				t.Fatalf("Parse() = %#v, want error", p)
			}
			if code, _ := failure.CodeOf(err); code != tt.want {
				t.Errorf("code = %q, want %q (err %v)", code, tt.want, err)
			}
		})
	}
}

func TestMalformedStructuredDoesNotFallBack(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderPaymentSignature, "garbage!")
	h.Set("Authorization", "Bearer valid-token")

	if _, err := Parse(h); !failure.Is(err, failure.ProofMalformed) {
		t.Errorf("err = %v, want ProofMalformed", err)
	}
}
