// Package challenge renders "402 Payment Required" responses.
package challenge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
)

// Version is the challenge body format version.
const Version = "1"

// HeaderPaymentRequired carries the base64 encoded body for x402 clients that
// read headers only.
const HeaderPaymentRequired = "Payment-Required"

// Legacy headers understood by the original crawler SDKs.
const (
	HeaderPrice     = "X402-Price"
	HeaderCurrency  = "X402-Currency"
	HeaderRecipient = "X402-Recipient"
	HeaderContract  = "X402-Contract"
	HeaderChainID   = "X402-Chain-Id"
)

// Challenge is the body of a 402 response.
type Challenge struct {
	Version      string                `json:"version"`
	Error        string                `json:"error,omitempty"`
	Requirements []pricing.Requirement `json:"requirements"`
}

// Build assembles a challenge for one or more requirements. reason is the
// failure that caused it, empty on a first request.
func Build(reason string, reqs ...pricing.Requirement) (*Challenge, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("challenge needs at least one requirement")
	}
	c := &Challenge{
		Version:      Version,
		Error:        reason,
		Requirements: make([]pricing.Requirement, len(reqs)),
	}
	for i, r := range reqs {
		if r.Scheme == "" {
			r.Scheme = pricing.SchemeExact
		}
		if r.Timeout <= 0 {
			r.Timeout = pricing.DefaultTimeout
		}
		c.Requirements[i] = r
	}
	return c, nil
}

// Write serializes c as the response.
func (c *Challenge) Write(w http.ResponseWriter) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	first := c.Requirements[0]
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderPaymentRequired, base64.StdEncoding.EncodeToString(body))
	h.Set(HeaderPrice, first.Amount)
	h.Set(HeaderCurrency, currency(first))
	h.Set(HeaderRecipient, first.PayTo)
	h.Set(HeaderContract, first.Asset)
	h.Set(HeaderChainID, pricing.NumericChainID(first.Network))
	h.Set("Content-Length", strconv.Itoa(len(body)))

	w.WriteHeader(http.StatusPaymentRequired)
	_, err = w.Write(body)
	return err
}

func currency(r pricing.Requirement) string {
	if r.Currency != "" {
		return r.Currency
	}
	return pricing.DefaultCurrency
}
