package controller

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"

	x402v1alpha1 "github.com/razvanmacovei/x402-crawl-gateway/api/v1alpha1"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/routestore"
)

const maxDecimals = 36

// compileRoute validates an X402Route and converts it into the form the
// gateway serves from. Prices stay textual; the gateway converts them to
// smallest units per request.
func compileRoute(route *x402v1alpha1.X402Route, backends map[string]string) (*routestore.CompiledRoute, error) {
	spec := route.Spec
	var errs []error

	publisher, err := checksumAddress("publisher.address", spec.Publisher.Address)
	if err != nil {
		errs = append(errs, err)
	}
	wallet := publisher
	if spec.Payment.Wallet != "" {
		if wallet, err = checksumAddress("payment.wallet", spec.Payment.Wallet); err != nil {
			errs = append(errs, err)
		}
	}

	if spec.Payment.Network == "" {
		errs = append(errs, errors.New("payment.network is required"))
	}
	asset := spec.Payment.Asset
	if asset == "" {
		if usdc, ok := pricing.USDCAddress(spec.Payment.Network); ok {
			asset = usdc
		} else if spec.Payment.Network != "" {
			errs = append(errs, fmt.Errorf("payment.asset is required for network %q", spec.Payment.Network))
		}
	} else if !common.IsHexAddress(asset) {
		errs = append(errs, fmt.Errorf("payment.asset %q is not an address", asset))
	}

	decimals := pricing.DefaultDecimals
	if spec.Payment.Decimals != nil {
		decimals = *spec.Payment.Decimals
		if decimals < 0 || decimals > maxDecimals {
			errs = append(errs, fmt.Errorf("payment.decimals %d out of range", decimals))
		}
	}

	if spec.Payment.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("payment.timeoutSeconds must not be negative"))
	}
	if spec.Payment.FacilitatorURL != "" {
		if err := validateFacilitatorURL(spec.Payment.FacilitatorURL); err != nil {
			errs = append(errs, fmt.Errorf("payment.facilitatorURL: %w", err))
		}
	}
	if spec.Payment.DefaultPrice != "" {
		if _, err := pricing.ParseAmount(spec.Payment.DefaultPrice, decimals); err != nil {
			errs = append(errs, fmt.Errorf("payment.defaultPrice: %w", err))
		}
	}

	compiled := &routestore.CompiledRoute{
		Name:           route.Name,
		Namespace:      route.Namespace,
		Publisher:      publisher,
		Wallet:         wallet,
		Network:        spec.Payment.Network,
		Asset:          asset,
		Decimals:       &decimals,
		TimeoutSeconds: spec.Payment.TimeoutSeconds,
		FacilitatorURL: spec.Payment.FacilitatorURL,
		DefaultPrice:   spec.Payment.DefaultPrice,
		Backends:       backends,
	}

	for i, rule := range spec.Routes {
		cr, err := compileRule(rule, decimals)
		if err != nil {
			errs = append(errs, fmt.Errorf("routes[%d] %s: %w", i, rule.Path, err))
			continue
		}
		compiled.Rules = append(compiled.Rules, cr)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return compiled, nil
}

func compileRule(rule x402v1alpha1.RouteRule, decimals int) (routestore.CompiledRule, error) {
	cr := routestore.CompiledRule{
		Path:  rule.Path,
		Price: rule.Price,
		Free:  rule.Free,
		Mode:  rule.Mode,
	}
	if cr.Path == "" {
		return cr, errors.New("path is required")
	}
	if cr.Mode == "" {
		cr.Mode = routestore.ModeAllPay
	}
	if cr.Mode != routestore.ModeAllPay && cr.Mode != routestore.ModeConditional {
		return cr, fmt.Errorf("unknown mode %q", cr.Mode)
	}
	if cr.Price != "" {
		if _, err := pricing.ParseAmount(cr.Price, decimals); err != nil {
			return cr, fmt.Errorf("price: %w", err)
		}
	}

	for _, cond := range rule.Conditions {
		if cond.Action != routestore.ActionPay && cond.Action != routestore.ActionFree {
			return cr, fmt.Errorf("condition on %s: unknown action %q", cond.Header, cond.Action)
		}
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			return cr, fmt.Errorf("compile condition pattern %q: %w", cond.Pattern, err)
		}
		cr.Conditions = append(cr.Conditions, routestore.CompiledCondition{
			Header:  cond.Header,
			Pattern: re,
			Action:  cond.Action,
		})
	}
	return cr, nil
}

// checksumAddress validates a hex address and returns its EIP-55 form.
func checksumAddress(field, addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%s %q is not a hex address", field, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
