package main

import (
	"encoding/json"
	"testing"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
)

func TestCheck(t *testing.T) {
	const payTo = "0x1111111111111111111111111111111111111111"
	proof := func(sig, to, value string) json.RawMessage {
		b, _ := json.Marshal(map[string]any{
			"payload": map[string]any{
				"signature": sig,
				"authorization": map[string]string{
					"from":  "0x2222222222222222222222222222222222222222",
					"to":    to,
					"value": value,
				},
			},
		})
		return b
	}
	requirement := pricing.Requirement{Amount: "10000", PayTo: payTo}

	tests := []struct {
		name   string
		proof  json.RawMessage
		valid  bool
		reason string
	}{
		{"exact amount", proof("0xsig", payTo, "10000"), true, ""},
		{"overpaid", proof("0xsig", payTo, "20000"), true, ""},
		{"underpaid", proof("0xsig", payTo, "9999"), false, "insufficient_amount"},
		{"wrong recipient", proof("0xsig", "0x3333333333333333333333333333333333333333", "10000"), false, "invalid_recipient"},
		{"unsigned", proof("", payTo, "10000"), false, "missing_signature"},
		{"not json", json.RawMessage(`"x"`), false, "invalid_payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := check(verifyRequest{Proof: tt.proof, Requirement: requirement})
			if got.IsValid != tt.valid || got.InvalidReason != tt.reason {
				t.Errorf("check() = %+v, want valid=%v reason=%q", got, tt.valid, tt.reason)
			}
			if got.IsValid && got.Payer == "" {
				t.Error("accepted response carries no payer")
			}
		})
	}
}
