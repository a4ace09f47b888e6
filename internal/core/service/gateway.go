package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/metrics"
)

const (
	mimeJSON = "application/json"

	// drainLimit caps how much of a rejected body is read before closing.
	drainLimit = 64 << 10
)

var _ ports.Gateway = (*Gateway)(nil)

// GatewayConfig holds the fixed parts of every authenticated call.
type GatewayConfig struct {
	BaseURL string
	Client  *http.Client
}

// Gateway wraps outbound API calls: it attaches the bearer token and turns
// 401/403 answers into a cleared session, one notice, a navigation event and
// a typed error. Any other answer is handed back untouched.
type Gateway struct {
	baseURL  string
	client   *http.Client
	store    ports.CredentialStore
	events   ports.EventPublisher
	guard    ports.IntentGuard
	notifier ports.Notifier
	now      func() time.Time
	log      zerolog.Logger
}

func NewGateway(
	cfg GatewayConfig,
	store ports.CredentialStore,
	events ports.EventPublisher,
	guard ports.IntentGuard,
	notifier ports.Notifier,
	log zerolog.Logger,
) *Gateway {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   client,
		store:    store,
		events:   events,
		guard:    guard,
		notifier: notifier,
		now:      time.Now,
		log:      log,
	}
}

// Request issues a JSON call. A caller-provided Content-Type is kept.
func (g *Gateway) Request(ctx context.Context, path string, opts ports.RequestOptions) (*http.Response, error) {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := g.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range opts.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", mimeJSON)
	}
	g.authorize(ctx, req)

	return g.do(ctx, req, path)
}

// Upload posts form as multipart/form-data. The Content-Type carries the
// writer's boundary; a JSON content type is never set here.
func (g *Gateway) Upload(ctx context.Context, path string, form *ports.UploadForm) (*http.Response, error) {
	body, contentType, err := encodeMultipart(form)
	if err != nil {
		return nil, err
	}

	req, err := g.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	g.authorize(ctx, req)

	return g.do(ctx, req, path)
}

func (g *Gateway) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := resolvePath(g.baseURL, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	return req, nil
}

// authorize reads the token at issue time; concurrent calls never share it.
func (g *Gateway) authorize(ctx context.Context, req *http.Request) {
	if token, ok := g.store.ReadToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (g *Gateway) do(ctx context.Context, req *http.Request, path string) (*http.Response, error) {
	start := g.now()
	resp, err := g.client.Do(req)
	metrics.GatewayRequestDuration.WithLabelValues(req.Method).Observe(g.now().Sub(start).Seconds())
	if err != nil {
		metrics.GatewayNetworkErrorsTotal.Inc()
		g.log.Error().Err(err).Str("method", req.Method).Str("path", path).Msg("api call failed without response")
		return nil, err
	}
	metrics.GatewayRequestsTotal.WithLabelValues(req.Method, statusClass(resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, g.reject(ctx, resp, path)
	}
	return resp, nil
}

// reject runs the failure sequence in order: clear, notice, navigation
// event, typed error. Every step has completed when the error is returned.
func (g *Gateway) reject(ctx context.Context, resp *http.Response, path string) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()

	// The caller may already be gone; the session still has to be torn down.
	ctx = context.WithoutCancel(ctx)
	authErr := &domain.AuthError{Status: resp.StatusCode, Path: path}

	reason := "authentication"
	if resp.StatusCode == http.StatusForbidden {
		reason = "authorization"
	}
	metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	g.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("api rejected session")

	if err := g.store.ClearSession(ctx); err != nil {
		g.log.Error().Err(err).Msg("clear session after auth failure")
	}

	notice := domain.NoticeFor(resp.StatusCode, g.now())
	if g.guard != nil && g.guard.Active() {
		metrics.NoticesTotal.WithLabelValues(string(notice.Kind), "suppressed").Inc()
		g.log.Debug().Str("kind", string(notice.Kind)).Msg("notice suppressed during logout")
	} else {
		metrics.NoticesTotal.WithLabelValues(string(notice.Kind), "shown").Inc()
		if g.notifier != nil {
			g.notifier.Notify(ctx, notice)
		}
	}

	if g.events != nil {
		g.events.Publish(ctx, domain.SessionEvent{
			Kind:   domain.EventAuthRejected,
			Status: resp.StatusCode,
		})
	}
	return authErr
}

func resolvePath(base, path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("gateway: parse path %q: %w", path, err)
	}
	if u.IsAbs() || u.Host != "" {
		return "", fmt.Errorf("gateway: %w: %s", domain.ErrAbsolutePath, path)
	}
	return base + "/" + strings.TrimLeft(path, "/"), nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

func encodeMultipart(form *ports.UploadForm) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	if form != nil {
		keys := make([]string, 0, len(form.Fields))
		for k := range form.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := mw.WriteField(k, form.Fields[k]); err != nil {
				return nil, "", fmt.Errorf("gateway: write field %s: %w", k, err)
			}
		}
		for _, f := range form.Files {
			part, err := mw.CreateFormFile(f.Field, f.Filename)
			if err != nil {
				return nil, "", fmt.Errorf("gateway: create part %s: %w", f.Field, err)
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", fmt.Errorf("gateway: copy part %s: %w", f.Field, err)
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("gateway: close multipart: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
