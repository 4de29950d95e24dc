package main

import (
	"net/http"
	"strings"
	"testing"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
)

func TestBuildPaymentParses(t *testing.T) {
	req := pricing.Requirement{
		Scheme:   pricing.SchemeExact,
		Network:  "eip155:84532",
		Amount:   "10000",
		Resource: "https://news.example.com/article/1",
		PayTo:    "0x1111111111111111111111111111111111111111",
		Timeout:  300,
	}
	header, payer, err := buildPayment(req)
	if err != nil {
		t.Fatal(err)
	}

	h := http.Header{}
	h.Set(proof.HeaderPaymentSignature, header)
	p, err := proof.Parse(h)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pay, ok := p.(*proof.Payment)
	if !ok {
		t.Fatalf("proof kind = %s, want payment", p.Kind())
	}
	if pay.Version != 2 || pay.Amount != "10000" || pay.Resource != req.Resource {
		t.Errorf("payment = %+v", pay)
	}
	if !strings.EqualFold(pay.Payer, payer.Hex()) || !strings.EqualFold(pay.PayTo, req.PayTo) {
		t.Errorf("payer/payTo = %s/%s", pay.Payer, pay.PayTo)
	}
	if pay.ValidBefore == 0 || pay.Nonce == "" {
		t.Errorf("authorization window or nonce missing: %+v", pay)
	}
}
