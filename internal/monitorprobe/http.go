package monitorprobe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

// maxBodySnippet is the cap on how much of a response body is read for
// validation; bodies are never buffered in full (spec.md §4.1).
const maxBodySnippet = 8 * 1024

// HTTPProbe runs website/rest_endpoint targets over HTTP(S). A new Client
// is built per probe so stage timing via httptrace stays uncontaminated by
// connection reuse across targets; connections are not pooled across
// probes by design.
type HTTPProbe struct {
	cfg monitorcfg.Config
}

func NewHTTPProbe(cfg monitorcfg.Config) *HTTPProbe {
	return &HTTPProbe{cfg: cfg}
}

// Run executes the staged DNS -> CONNECT -> TLS -> TTFB state machine
// against opts, including the Range/HEAD/HTTPS-upgrade fallback rules from
// spec.md §4.1.
func (p *HTTPProbe) Run(ctx context.Context, url string, opts monitor.ProbeOptions) monitor.ProbeResult {
	// ResponseTimeCeiling is an SLA threshold checked after the attempt
	// completes, not a deadline: it must never cut off a response that
	// would otherwise have arrived late but successfully.
	timeout := p.cfg.AdaptiveTimeout(0, opts.RecheckInProgress)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	attempt := p.attempt(ctx, url, method, opts, method == http.MethodGet && opts.Validator == nil)
	if attempt.err == nil && shouldRetryWithoutRange(attempt.result.StatusCode) && attempt.usedRange {
		attempt = p.attempt(ctx, url, method, opts, false)
		if attempt.err == nil && shouldRetryAsHead(attempt.result.StatusCode) {
			headAttempt := p.attempt(ctx, url, http.MethodHead, opts, false)
			if headAttempt.err == nil {
				attempt = headAttempt
			}
		}
	}

	if attempt.err != nil && strings.HasPrefix(url, "http://") && isHTTPSUpgradeEligible(attempt.err.Error()) {
		upgraded := "https://" + strings.TrimPrefix(url, "http://")
		retried := p.attempt(ctx, upgraded, method, opts, method == http.MethodGet && opts.Validator == nil)
		if retried.err == nil {
			attempt = retried
		}
	}

	res := attempt.result
	if attempt.err != nil {
		res.Status = monitor.StatusOffline
		if ctx.Err() == context.DeadlineExceeded {
			res.StatusCode = monitor.StatusCodeTimeout
		} else {
			res.StatusCode = monitor.StatusCodeConnectionError
		}
		res.Detailed = monitor.DetailedDown
		res.Error = stageError(attempt.stage, attempt.err)
		return res
	}

	status, detailed := Classify(res.StatusCode)
	res.Status, res.Detailed = status, detailed
	if opts.ResponseTimeCeiling > 0 && res.ResponseTime > opts.ResponseTimeCeiling && status == monitor.StatusOnline {
		res.Detailed = monitor.DetailedReachableWithError
		res.Error = fmt.Sprintf("response time %s exceeded ceiling %s", res.ResponseTime, opts.ResponseTimeCeiling)
	}
	if status == monitor.StatusOnline && opts.Validator != nil {
		if ok, reason := validateBody(opts.Validator, res.BodySnippet); !ok {
			res.Status = monitor.StatusOffline
			res.Detailed = monitor.DetailedReachableWithError
			res.Error = reason
		}
	}
	return res
}

type attemptResult struct {
	result    monitor.ProbeResult
	err       error
	stage     string
	usedRange bool
}

func (p *HTTPProbe) attempt(ctx context.Context, url, method string, opts monitor.ProbeOptions, useRange bool) attemptResult {
	var stages monitor.StageTimings
	var dnsStart, connectStart, tlsStart, reqStart time.Time
	var certSnap *monitor.SSLCertSnapshot

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone: func(httptrace.DNSDoneInfo) {
			if !dnsStart.IsZero() {
				stages.DNS = time.Since(dnsStart)
			}
		},
		ConnectStart: func(string, string) { connectStart = time.Now() },
		ConnectDone: func(string, string, error) {
			if !connectStart.IsZero() {
				stages.Connect = time.Since(connectStart)
			}
		},
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if !tlsStart.IsZero() {
				stages.TLS = time.Since(tlsStart)
			}
			if err == nil && len(state.PeerCertificates) > 0 {
				leaf := state.PeerCertificates[0]
				sum := sha256.Sum256(leaf.Raw)
				certSnap = &monitor.SSLCertSnapshot{
					FingerprintSHA256: hex.EncodeToString(sum[:]),
					IssuerCN:          leaf.Issuer.CommonName,
					NotAfter:          leaf.NotAfter,
					CheckedAt:         time.Now(),
				}
			}
		},
		GotFirstResponseByte: func() {
			if !reqStart.IsZero() {
				stages.TTFB = time.Since(reqStart)
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, url, strings.NewReader(opts.Body))
	if err != nil {
		return attemptResult{err: err, stage: "request"}
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.CacheNoCache {
		req.Header.Set("Cache-Control", "no-cache")
	}
	if useRange {
		req.Header.Set("Range", "bytes=0-0")
	}

	client := &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	reqStart = time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return attemptResult{err: err, stage: connectOrTLSStage(err), usedRange: useRange}
	}
	defer resp.Body.Close()

	bodyCtx, bodyCancel := context.WithTimeout(context.Background(), p.cfg.BodyReadTimeout)
	defer bodyCancel()
	snippet, _ := readBodyCapped(bodyCtx, resp.Body, maxBodySnippet)

	res := monitor.ProbeResult{
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(reqStart),
		Stages:       stages,
		BodySnippet:  snippet,
		UsedMethod:   method,
		UsedRange:    useRange,
		SSLCert:      certSnap,
		Edge:         extractEdgeHints(resp.Header),
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		res.RedirectLoc = loc
	}
	return attemptResult{result: res, usedRange: useRange}
}

func readBodyCapped(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	type readOut struct {
		buf []byte
		err error
	}
	done := make(chan readOut, 1)
	go func() {
		buf, err := io.ReadAll(io.LimitReader(r, limit))
		done <- readOut{buf, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.buf, out.err
	}
}

func connectOrTLSStage(err error) string {
	msg := err.Error()
	switch {
	case containsFold(msg, "tls") || containsFold(msg, "certificate") || containsFold(msg, "x509"):
		return "tls"
	case containsFold(msg, "timeout") || containsFold(msg, "deadline"):
		return "ttfb"
	default:
		return "connect"
	}
}

func stageError(stage string, err error) string {
	if stage == "" {
		stage = "probe"
	}
	return fmt.Sprintf("%s: %v", stage, err)
}

func validateBody(v *monitor.BodyValidator, body []byte) (bool, string) {
	lower := bytes.ToLower(body)
	for _, needle := range v.ContainsText {
		if !bytes.Contains(lower, bytes.ToLower([]byte(needle))) {
			return false, fmt.Sprintf("response body missing expected text %q", needle)
		}
	}
	// JSONPath validation is parse-only (spec.md §9 Open Questions): the
	// expression itself is never evaluated against the body, but a
	// non-empty JSONPath does require the body to be well-formed JSON.
	if v.JSONPath != "" && !json.Valid(body) {
		return false, "response body is not valid JSON"
	}
	return true, ""
}

func extractEdgeHints(h http.Header) *monitor.EdgeHints {
	hints := &monitor.EdgeHints{Headers: map[string]string{}}
	found := false
	for _, key := range []string{"Server", "Via", "CF-RAY", "X-Served-By", "X-Cache"} {
		if v := h.Get(key); v != "" {
			hints.Headers[key] = v
			found = true
		}
	}
	if ray := h.Get("CF-RAY"); ray != "" {
		hints.CDNProvider = "cloudflare"
		hints.EdgeRayID = ray
		found = true
	}
	if !found {
		return nil
	}
	return hints
}
