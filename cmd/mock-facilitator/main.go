package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
)

// verifyRequest is what the gateway posts to /verify.
type verifyRequest struct {
	Proof       json.RawMessage     `json:"proof"`
	Requirement pricing.Requirement `json:"requirement"`
}

type payload struct {
	Payload struct {
		Signature     string `json:"signature"`
		Authorization struct {
			From  string `json:"from"`
			To    string `json:"to"`
			Value string `json:"value"`
		} `json:"authorization"`
	} `json:"payload"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
	Transaction   string `json:"transaction,omitempty"`
}

func main() {
	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	log := zap.New(zap.UseFlagOptions(&opts)).WithName("mock-facilitator")

	port := os.Getenv("X402_PORT")
	if port == "" {
		port = "8080"
	}
	rejectAll := os.Getenv("X402_MOCK_REJECT") == "true"

	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req verifyRequest
		if err := json.Unmarshal(body, &req); err != nil {
			log.Info("invalid request body", "error", err.Error())
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		resp := check(req)
		if rejectAll {
			resp = verifyResponse{InvalidReason: "rejected by configuration"}
		}
		log.Info("verify",
			"resource", req.Requirement.Resource,
			"amount", req.Requirement.Amount,
			"payTo", req.Requirement.PayTo,
			"valid", resp.IsValid,
			"reason", resp.InvalidReason,
		)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error(err, "write verify response")
		}
	})

	addr := fmt.Sprintf(":%s", port)
	log.Info("starting mock facilitator", "addr", addr, "rejectAll", rejectAll)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "server failed")
		os.Exit(1)
	}
}

// check accepts any signed authorization that pays at least the required
// amount to the required recipient. Signatures are not verified.
func check(req verifyRequest) verifyResponse {
	var p payload
	if err := json.Unmarshal(req.Proof, &p); err != nil {
		return verifyResponse{InvalidReason: "invalid_payload"}
	}
	auth := p.Payload.Authorization
	if p.Payload.Signature == "" {
		return verifyResponse{InvalidReason: "missing_signature"}
	}
	if !strings.EqualFold(auth.To, req.Requirement.PayTo) {
		return verifyResponse{InvalidReason: "invalid_recipient"}
	}
	paid, ok1 := new(big.Int).SetString(auth.Value, 10)
	want, ok2 := new(big.Int).SetString(req.Requirement.Amount, 10)
	if !ok1 || !ok2 || paid.Cmp(want) < 0 {
		return verifyResponse{InvalidReason: "insufficient_amount"}
	}
	return verifyResponse{IsValid: true, Payer: auth.From, Transaction: mockTx(auth.From)}
}

func mockTx(payer string) string {
	return "0xmock" + strings.TrimPrefix(strings.ToLower(payer), "0x")
}
