package verifier

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	cdpjwt "github.com/coinbase/cdp-sdk/go/auth"
)

const correlationSource = "x402-crawl-gateway"

// CDPAuth signs facilitator calls with a Coinbase Developer Platform API key.
type CDPAuth struct {
	KeyID     string
	KeySecret string
}

func (a CDPAuth) AuthHeaders(_ context.Context, method string, target *url.URL) (map[string]string, error) {
	headers := map[string]string{
		"Correlation-Context": correlationHeader(),
	}
	if a.KeyID == "" || a.KeySecret == "" {
		return headers, nil
	}

	jwt, err := cdpjwt.GenerateJWT(cdpjwt.JwtOptions{
		KeyID:         a.KeyID,
		KeySecret:     a.KeySecret,
		RequestMethod: method,
		RequestHost:   target.Host,
		RequestPath:   target.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("generate JWT: %w", err)
	}
	headers["Authorization"] = "Bearer " + jwt
	return headers, nil
}

func correlationHeader() string {
	data := map[string]string{
		"sdk_language": "go",
		"source":       correlationSource,
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(data[k]))
	}
	return strings.Join(parts, ",")
}
