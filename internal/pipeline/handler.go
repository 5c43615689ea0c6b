package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/l7waf/engine/internal/errors"
	httputilx "github.com/l7waf/engine/internal/httputil"
	"github.com/l7waf/engine/internal/logging"
	"github.com/l7waf/engine/internal/waf"
)

// ServeHTTP adapts Pipeline to http.Handler: it builds a Transaction,
// runs the phase sequence, and either writes a Block/Challenge response
// directly or proxies the request to the selected upstream server. The
// concrete connection-pooling/TLS-termination runtime is left to the
// caller's http.Server configuration; this handler only picks the
// target and forwards via net/http/httputil.ReverseProxy.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := logging.NewTraceID()
	ctx := logging.WithTraceID(r.Context(), traceID)
	clientIP := httputilx.ClientIP(r)
	ctx = logging.WithClientIP(ctx, clientIP)
	r = r.WithContext(ctx)

	tx := NewTransaction(r, clientIP)
	tx.id = traceID

	// request_body_limit enforcement happens against bytes actually read,
	// not the declared Content-Length (which a chunked request can omit or
	// misreport) — see Pipeline.feedRequestBody, driven from the WAF
	// request phase per spec §4.1 step 5.
	verdict := p.Run(tx)

	switch verdict.Kind {
	case VerdictBlock:
		se := errors.New(blockErrorCode(verdict.Reason), verdict.Reason, statusOr(verdict.Status, http.StatusForbidden))
		if verdict.RuleID != "" {
			se = se.WithDetails("rule_id", verdict.RuleID)
		}
		httputilx.WriteError(w, se)
		return
	case VerdictChallenge:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(verdict.ChallengeHTML))
		return
	default:
		p.proxy(w, r, tx)
	}
}

func statusOr(status, fallback int) int {
	if status > 0 {
		return status
	}
	return fallback
}

func blockErrorCode(reason string) errors.ErrorCode {
	switch reason {
	case "ip_blocked":
		return errors.ErrCodeIPBlocked
	case "rate_limited":
		return errors.ErrCodeRateLimited
	case "bot":
		return errors.ErrCodeBotBlocked
	case "waf_blocked":
		return errors.ErrCodeWAFBlocked
	case "route_not_found":
		return errors.ErrCodeRouteNotFound
	case "body_too_large":
		return errors.ErrCodeBodyTooLarge
	case "no_upstream":
		return errors.ErrCodeNoUpstream
	default:
		return errors.ErrCodeInternal
	}
}

func (p *Pipeline) proxy(w http.ResponseWriter, r *http.Request, tx *Transaction) {
	if tx.server == nil {
		se := errors.NoUpstream(tx.Route.Upstream)
		httputilx.WriteError(w, se)
		return
	}
	if tx.wafTx != nil {
		defer tx.wafTx.Close()
	}

	target := &url.URL{Scheme: "http", Host: tx.server.Address}
	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ModifyResponse = func(resp *http.Response) error {
		if tx.wafTx == nil || tx.Route.WAFMode == "off" {
			return nil
		}
		iv, err := tx.wafTx.ProcessResponse(resp.StatusCode, headerPairs(resp.Header))
		if err != nil {
			return nil // fail-open for WAF
		}
		if iv == nil {
			iv, err = feedResponseBody(resp, tx.wafTx)
			if err != nil {
				return nil // fail-open for WAF
			}
		}
		if iv != nil && tx.Route.WAFMode != "detect" {
			resp.StatusCode = statusOr(iv.Status, http.StatusForbidden)
			resp.Status = ""
			resp.Body = io.NopCloser(strings.NewReader(""))
			resp.ContentLength = 0
			resp.Header.Set("Content-Length", "0")
		}
		return nil
	}
	rp.ServeHTTP(w, r)
}

// feedResponseBody reads the proxied response body, feeds it to the
// engine's response-body phase in order (write, then finalize), and
// rebuffers the bytes onto resp so the client still receives the original
// response when no interruption occurs.
func feedResponseBody(resp *http.Response, handle waf.TxHandle) (*waf.Intervention, error) {
	if resp.Body == nil {
		return handle.FinalizeResponseBody()
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if iv, err := handle.WriteResponseBody(data); err != nil || iv != nil {
		return iv, err
	}
	return handle.FinalizeResponseBody()
}

func headerPairs(h http.Header) [][2]string {
	pairs := make([][2]string, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			pairs = append(pairs, [2]string{name, v})
		}
	}
	return pairs
}
