package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/audit"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/challenge"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/crawl"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/fetcher"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/license"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/routestore"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/verifier"
)

// HeaderPaymentResponse carries the base64 encoded settlement receipt on
// served responses.
const HeaderPaymentResponse = "Payment-Response"

// Terminal outcomes of one request.
const (
	OutcomeChallengeIssued = "challenge_issued"
	OutcomeDenied          = "denied"
	OutcomeUpstreamFailed  = "upstream_failed"
	OutcomeServed          = "served"
	OutcomeServedFree      = "served_free"
	OutcomeInternalError   = "internal_error"
	OutcomeNotFound        = "not_found"
	OutcomeBadRequest      = "bad_request"
)

// Routes resolves a path to its compiled route and rule.
type Routes interface {
	Match(path string) (*routestore.CompiledRoute, *routestore.CompiledRule, bool)
}

// Fetcher retrieves upstream content.
type Fetcher interface {
	Fetch(ctx context.Context, req *crawl.Request, backend string) (*fetcher.Response, error)
}

// LicenseGate decides whether a publisher may be served.
type LicenseGate interface {
	Allow(ctx context.Context, owner string) (bool, license.Status, error)
}

// Auditor queues audit records without blocking.
type Auditor interface {
	Log(r audit.Record)
}

// Options wires a Handler.
type Options struct {
	Routes   Routes
	Policy   *pricing.Policy
	Verifier verifier.Verifier
	// VerifierName labels verification metrics.
	VerifierName string
	License      LicenseGate
	Fetcher      Fetcher
	Audit        Auditor
	// BaseURL is the public origin used for resource identifiers.
	BaseURL        string
	MaxRequestBody int64
	Log            logr.Logger
}

// Handler runs each inbound request through pricing, proof verification,
// the license gate and the upstream fetch.
type Handler struct {
	opts Options
	log  logr.Logger
}

// NewHandler creates a new gateway handler.
func NewHandler(opts Options) *Handler {
	if opts.Policy == nil {
		opts.Policy = &pricing.Policy{}
	}
	if opts.VerifierName == "" {
		opts.VerifierName = "default"
	}
	return &Handler{opts: opts, log: opts.Log}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := &trackingWriter{ResponseWriter: w}
	defer func() {
		if p := recover(); p != nil {
			h.log.Error(fmt.Errorf("panic: %v", p), "request handling panicked", "path", r.URL.Path)
			metrics.RequestsTotal.WithLabelValues("", "", OutcomeInternalError).Inc()
			if !rw.wrote {
				writeFailure(rw, failure.New(failure.InternalError, "internal error"))
			}
		}
	}()
	h.serve(rw, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := crawl.FromHTTP(r, h.opts.BaseURL, h.opts.MaxRequestBody)
	if err != nil {
		h.log.Info("rejecting unreadable request", "path", r.URL.Path, "error", err.Error())
		metrics.RequestsTotal.WithLabelValues("", "", OutcomeBadRequest).Inc()
		if errors.Is(err, crawl.ErrBodyTooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	path := req.Path()

	route, rule, ok := h.opts.Routes.Match(path)
	if !ok {
		h.log.V(1).Info("no matching route", "path", path)
		metrics.RequestsTotal.WithLabelValues("", "", OutcomeNotFound).Inc()
		http.Error(w, "no x402 route configured for this path", http.StatusNotFound)
		return
	}
	log := h.log.WithValues("path", path, "route", route.Namespace+"/"+route.Name)
	outcome := func(o string) {
		metrics.RequestsTotal.WithLabelValues(route.Namespace, route.Name, o).Inc()
	}

	requirement, err := h.opts.Policy.Resolve(req, route, rule)
	if err != nil {
		log.Error(err, "price resolution failed")
		outcome(OutcomeInternalError)
		writeFailure(w, failure.Wrap(failure.InternalError, err, "price resolution"))
		return
	}
	publisher := publisherOf(route)

	if requirement.Free() {
		if !h.checkLicense(ctx, w, log, publisher, outcome, nil) {
			return
		}
		resp, err := h.opts.Fetcher.Fetch(ctx, req, route.Backend(path))
		if err != nil {
			log.Info("upstream fetch failed", "reason", string(codeOf(err)), "error", err.Error())
			outcome(OutcomeUpstreamFailed)
			writeFailure(w, err)
			return
		}
		log.V(1).Info("free request served")
		outcome(OutcomeServedFree)
		h.audit(audit.Record{
			Subject:   req.Requester(),
			Publisher: publisher,
			Resource:  req.URL(),
			Amount:    requirement.Amount,
			Outcome:   audit.OutcomeServedFree,
		})
		writeUpstream(w, resp, nil)
		return
	}

	p, err := proof.FromRequest(req)
	if err != nil {
		code := codeOf(err)
		reason := ""
		if code != failure.ProofAbsent {
			reason = string(code)
			metrics.ProofFailuresTotal.WithLabelValues(reason).Inc()
			log.Info("malformed payment proof", "reason", reason, "error", err.Error())
		} else {
			log.V(1).Info("payment required")
		}
		outcome(OutcomeChallengeIssued)
		h.challenge(w, log, reason, requirement)
		return
	}

	verifyStart := time.Now()
	receipt, err := h.opts.Verifier.Verify(ctx, p, requirement, verifier.Context{
		Publisher:      publisher,
		FacilitatorURL: route.FacilitatorURL,
	})
	metrics.PaymentVerificationDuration.WithLabelValues(h.opts.VerifierName).Observe(time.Since(verifyStart).Seconds())
	if err != nil {
		code := codeOf(err)
		if !code.PaymentRelated() {
			log.Error(err, "payment verification failed")
			outcome(OutcomeInternalError)
			writeFailure(w, err)
			return
		}
		metrics.ProofFailuresTotal.WithLabelValues(string(code)).Inc()
		log.Info("payment rejected", "reason", string(code), "proof", p.Kind(), "error", err.Error())
		outcome(OutcomeChallengeIssued)
		h.challenge(w, log, string(code), requirement)
		return
	}
	metrics.PaymentAmountTotal.WithLabelValues(requirement.Network, requirement.Asset).Add(verifier.AmountValue(receipt.Amount))

	paid := audit.Record{
		Subject:   firstNonEmpty(receipt.Payer, req.Requester()),
		Publisher: publisher,
		Resource:  req.URL(),
		Amount:    receipt.Amount,
		Reference: receipt.Reference,
	}

	if !h.checkLicense(ctx, w, log, publisher, outcome, &paid) {
		return
	}

	resp, err := h.opts.Fetcher.Fetch(ctx, req, route.Backend(path))
	if err != nil {
		log.Info("upstream fetch failed after payment", "reason", string(codeOf(err)), "reference", receipt.Reference, "error", err.Error())
		outcome(OutcomeUpstreamFailed)
		paid.Outcome = audit.OutcomeUpstreamFailed
		h.audit(paid)
		writeFailure(w, err)
		return
	}

	log.Info("paid request served", "reference", receipt.Reference, "amount", receipt.Amount)
	outcome(OutcomeServed)
	paid.Outcome = audit.OutcomeServed
	h.audit(paid)
	writeUpstream(w, resp, receipt)
}

// checkLicense writes the denial and returns false when publisher may not be
// served. A paid record, when given, is audited as denied.
func (h *Handler) checkLicense(ctx context.Context, w http.ResponseWriter, log logr.Logger, publisher string, outcome func(string), paid *audit.Record) bool {
	allowed, status, err := h.opts.License.Allow(ctx, publisher)
	if err == nil && allowed {
		return true
	}

	var denial error
	if err != nil {
		log.Error(err, "license lookup failed", "publisher", publisher)
		outcome(OutcomeInternalError)
		denial = failure.Wrap(failure.InternalError, err, "license lookup")
	} else {
		log.Info("publisher license not active", "publisher", publisher, "status", string(status))
		outcome(OutcomeDenied)
		denial = failure.New(failure.LicenseInactive, "publisher license is %s", status)
	}
	if paid != nil {
		paid.Outcome = audit.OutcomeDenied
		h.audit(*paid)
	}
	writeFailure(w, denial)
	return false
}

func (h *Handler) challenge(w http.ResponseWriter, log logr.Logger, reason string, req pricing.Requirement) {
	c, err := challenge.Build(reason, req)
	if err == nil {
		err = c.Write(w)
	}
	if err != nil {
		log.Error(err, "failed to write challenge")
	}
}

// audit queues r. Nothing it does may change the response.
func (h *Handler) audit(r audit.Record) {
	if h.opts.Audit == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			h.log.Error(fmt.Errorf("panic: %v", p), "audit enqueue failed", "reference", r.Reference)
		}
	}()
	h.opts.Audit.Log(r)
}

// publisherOf names the license owner for a route. It comes from the route
// configuration, never from the caller.
func publisherOf(route *routestore.CompiledRoute) string {
	return firstNonEmpty(route.Publisher, route.Wallet)
}

func codeOf(err error) failure.Code {
	if code, ok := failure.CodeOf(err); ok {
		return code
	}
	return failure.InternalError
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeFailure(w http.ResponseWriter, err error) {
	code := codeOf(err)
	msg := http.StatusText(code.Status())
	var fe *failure.Error
	if errors.As(err, &fe) && code != failure.InternalError {
		msg = fe.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code.Status())
	json.NewEncoder(w).Encode(errorBody{Error: string(code), Message: msg})
}

// writeUpstream passes the upstream status, content type and body through.
func writeUpstream(w http.ResponseWriter, resp *fetcher.Response, receipt *verifier.Receipt) {
	h := w.Header()
	for k, vs := range resp.Header {
		if k == "Content-Length" || k == "Set-Cookie" {
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	if resp.ContentType != "" {
		h.Set("Content-Type", resp.ContentType)
	}
	if receipt != nil {
		if b, err := json.Marshal(receipt); err == nil {
			h.Set(HeaderPaymentResponse, base64.StdEncoding.EncodeToString(b))
		}
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// trackingWriter remembers whether the response was started.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}
