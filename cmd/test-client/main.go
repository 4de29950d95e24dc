package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/challenge"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/crawl"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/gateway"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
)

const userAgent = "x402-test-crawler/1.0 (bot)"

func main() {
	endpoint := "http://localhost:8402/articles/hello"
	if len(os.Args) > 1 {
		endpoint = os.Args[1]
	} else if env := os.Getenv("X402_ENDPOINT"); env != "" {
		endpoint = env
	}

	fmt.Println("=== x402 Test Crawler ===")
	fmt.Printf("Endpoint: %s\n\n", endpoint)

	fmt.Println("--- Step 1: Request without payment ---")
	resp, body := do(endpoint, nil)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Body:\n%s\n\n", body)

	if resp.StatusCode != http.StatusPaymentRequired {
		fmt.Println("Expected 402 Payment Required, got something else.")
		fmt.Println("The endpoint may be free, or the gateway is not running.")
		os.Exit(0)
	}

	var c challenge.Challenge
	if err := json.Unmarshal(body, &c); err != nil || len(c.Requirements) == 0 {
		fmt.Fprintf(os.Stderr, "Error: unreadable challenge: %v\n", err)
		os.Exit(1)
	}
	req := c.Requirements[0]
	fmt.Printf("Requirement: %s smallest units of %s to %s on %s\n\n", req.Amount, req.Asset, req.PayTo, req.Network)

	fmt.Println("--- Step 2: Request with a signed payment (Payment-Signature) ---")
	header, payer, err := buildPayment(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building payment: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Payer: %s\n", payer.Hex())
	fmt.Printf("%s: %s...\n", proof.HeaderPaymentSignature, truncate(header, 60))

	paid := map[string]string{
		proof.HeaderPaymentSignature: header,
		crawl.HeaderCrawler:          payer.Hex(),
	}
	resp2, body2 := do(endpoint, paid)
	fmt.Printf("Status: %s\n", resp2.Status)
	if receipt := resp2.Header.Get(gateway.HeaderPaymentResponse); receipt != "" {
		if decoded, err := base64.StdEncoding.DecodeString(receipt); err == nil {
			fmt.Printf("%s (decoded): %s\n", gateway.HeaderPaymentResponse, decoded)
		}
	}
	fmt.Printf("Body:\n%s\n\n", truncate(string(body2), 2000))

	if resp2.StatusCode != http.StatusOK {
		fmt.Printf("Unexpected status %d. Check the facilitator and gateway logs.\n", resp2.StatusCode)
		os.Exit(1)
	}

	fmt.Println("--- Step 3: Replay the same payment ---")
	resp3, body3 := do(endpoint, paid)
	fmt.Printf("Status: %s\n%s\n", resp3.Status, body3)
	if resp3.StatusCode == http.StatusPaymentRequired {
		fmt.Println("Replay rejected as expected.")
	}
}

func do(endpoint string, headers map[string]string) (*http.Response, []byte) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

// buildPayment signs an exact-scheme authorization for req with a throwaway
// key. The mock facilitator does not check the signature.
func buildPayment(req pricing.Requirement) (string, common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, err
	}
	payer := crypto.PubkeyToAddress(key.PublicKey)

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", common.Address{}, err
	}
	validBefore := strconv.FormatInt(time.Now().Add(time.Duration(req.Timeout)*time.Second).Unix(), 10)

	authorization := map[string]string{
		"from":        payer.Hex(),
		"to":          req.PayTo,
		"value":       req.Amount,
		"validAfter":  "0",
		"validBefore": validBefore,
		"nonce":       hexutil.Encode(nonce),
	}
	digest := crypto.Keccak256(
		payer.Bytes(),
		common.HexToAddress(req.PayTo).Bytes(),
		[]byte(req.Amount),
		[]byte(validBefore),
		nonce,
	)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", common.Address{}, err
	}

	payload := map[string]any{
		"x402Version": 2,
		"scheme":      req.Scheme,
		"network":     req.Network,
		"resource":    map[string]string{"url": req.Resource},
		"accepted":    req,
		"payload": map[string]any{
			"signature":     hexutil.Encode(sig),
			"authorization": authorization,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", common.Address{}, err
	}
	return base64.StdEncoding.EncodeToString(raw), payer, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
