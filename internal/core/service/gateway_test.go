package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

type seenRequest struct {
	method        string
	path          string
	authorization string
	contentType   string
	body          string
}

type apiRecorder struct {
	mu   sync.Mutex
	seen []seenRequest
}

func (r *apiRecorder) last() seenRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

func (r *apiRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// newAPI answers every call with status and body after recording it.
func newAPI(t *testing.T, status int, body string) (*httptest.Server, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.seen = append(rec.seen, seenRequest{
			method:        r.Method,
			path:          r.URL.RequestURI(),
			authorization: r.Header.Get("Authorization"),
			contentType:   r.Header.Get("Content-Type"),
			body:          string(data),
		})
		rec.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestGateway_AttachesBearerToken(t *testing.T) {
	f := newFixture()
	f.login(admin())
	server, rec := newAPI(t, http.StatusOK, `{"ok":true}`)

	resp, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/cases?page=2", ports.RequestOptions{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	got := rec.last()
	if got.authorization != "Bearer tok-1" {
		t.Fatalf("unexpected Authorization header: %q", got.authorization)
	}
	if got.method != http.MethodGet || got.path != "/api/v1/cases?page=2" {
		t.Fatalf("unexpected request line: %s %s", got.method, got.path)
	}
	if got.contentType != "application/json" {
		t.Fatalf("expected JSON content type by default, got %q", got.contentType)
	}
}

func TestGateway_NoTokenNoHeader(t *testing.T) {
	f := newFixture()
	server, rec := newAPI(t, http.StatusOK, `{}`)

	resp, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/public", ports.RequestOptions{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if got := rec.last().authorization; got != "" {
		t.Fatalf("expected no Authorization header, got %q", got)
	}
}

func TestGateway_EncodesBodyAndKeepsCallerHeaders(t *testing.T) {
	f := newFixture()
	f.login(admin())
	server, rec := newAPI(t, http.StatusCreated, `{}`)
	gw := f.gateway(server.URL)

	resp, err := gw.Request(context.Background(), "api/v1/cases", ports.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"title": "Break-in"},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if got := rec.last(); got.body != `{"title":"Break-in"}` || got.path != "/api/v1/cases" {
		t.Fatalf("unexpected request: %+v", got)
	}

	resp, err = gw.Request(context.Background(), "/api/v1/notes", ports.RequestOptions{
		Method: http.MethodPut,
		Header: http.Header{"Content-Type": []string{"text/plain"}, "Authorization": []string{"Bearer forged"}},
		Body:   "plain note",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	got := rec.last()
	if got.contentType != "text/plain" || got.body != "plain note" {
		t.Fatalf("caller content type and raw body must be kept: %+v", got)
	}
	if got.authorization != "Bearer tok-1" {
		t.Fatalf("stored token must win over a caller header, got %q", got.authorization)
	}
}

func TestGateway_CallerHeaderNamesAreCanonicalized(t *testing.T) {
	f := newFixture()
	got := make(chan []string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Values("Content-Type")
	}))
	t.Cleanup(server.Close)

	resp, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/notes", ports.RequestOptions{
		Method: http.MethodPost,
		Header: http.Header{"content-type": []string{"text/csv"}},
		Body:   "a,b",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if values := <-got; len(values) != 1 || values[0] != "text/csv" {
		t.Fatalf("expected only the caller's content type, got %v", values)
	}
}

func TestGateway_UnauthorizedTearsDownSession(t *testing.T) {
	f := newFixture()
	f.login(admin())
	server, _ := newAPI(t, http.StatusUnauthorized, `{"detail":"Token expired"}`)

	resp, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/cases", ports.RequestOptions{})
	if resp != nil {
		t.Fatalf("expected no response on 401")
	}
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Status != http.StatusUnauthorized || authErr.Path != "/api/v1/cases" {
		t.Fatalf("unexpected auth error: %#v", err)
	}

	if _, ok := f.store.ReadToken(context.Background()); ok {
		t.Fatalf("session must be cleared before the error is returned")
	}
	notices := f.notifier.all()
	if len(notices) != 1 || notices[0].Kind != domain.NoticeSessionExpired {
		t.Fatalf("expected exactly one expiry notice, got %+v", notices)
	}

	i := f.lastOf(domain.EventAuthRejected)
	if i < 0 {
		t.Fatalf("expected an auth_rejected event, got %v", f.kinds())
	}
	if f.events.hadToken[i] {
		t.Fatalf("navigation event must follow the clear")
	}
	if f.events.notices[i] != 1 {
		t.Fatalf("navigation event must follow the notice")
	}
	if f.events.events[i].Status != http.StatusUnauthorized {
		t.Fatalf("event must carry the status, got %d", f.events.events[i].Status)
	}
}

func TestGateway_ForbiddenMeansOutdatedSession(t *testing.T) {
	f := newFixture()
	f.login(investigator())
	server, _ := newAPI(t, http.StatusForbidden, `{"detail":"Not enough permissions"}`)

	_, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/admin/users", ports.RequestOptions{})
	if !errors.Is(err, domain.ErrAuthorizationFailed) {
		t.Fatalf("expected ErrAuthorizationFailed, got %v", err)
	}
	if errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("403 must not read as an authentication failure")
	}
	notices := f.notifier.all()
	if len(notices) != 1 || notices[0].Kind != domain.NoticeSessionOutdated {
		t.Fatalf("expected one outdated notice, got %+v", notices)
	}
	if _, ok := f.store.ReadToken(context.Background()); ok {
		t.Fatalf("session must be cleared on 403")
	}
}

func TestGateway_LogoutWindowSuppressesNotice(t *testing.T) {
	f := newFixture()
	f.login(admin())
	server, _ := newAPI(t, http.StatusUnauthorized, ``)
	gw := f.gateway(server.URL)

	f.guard.Begin()
	_, err := gw.Request(context.Background(), "/api/v1/cases", ports.RequestOptions{})
	if !domain.IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Fatalf("notice must be suppressed during logout, got %d", n)
	}
	if f.lastOf(domain.EventAuthRejected) < 0 {
		t.Fatalf("navigation must still happen while suppressed")
	}

	f.clock.Advance(time.Second)
	f.login(admin())
	_, err = gw.Request(context.Background(), "/api/v1/cases", ports.RequestOptions{})
	if !domain.IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if n := len(f.notifier.all()); n != 1 {
		t.Fatalf("notice must be shown once the window has passed, got %d", n)
	}
}

func TestGateway_OtherStatusesPassThrough(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		f := newFixture()
		f.login(admin())
		server, _ := newAPI(t, status, `{"detail":"nope"}`)

		resp, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/cases/1", ports.RequestOptions{})
		if err != nil {
			t.Fatalf("status %d: unexpected error %v", status, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != status || string(body) != `{"detail":"nope"}` {
			t.Fatalf("status %d: response must be handed back untouched, got %d %q", status, resp.StatusCode, body)
		}
		if _, ok := f.store.ReadToken(context.Background()); !ok {
			t.Fatalf("status %d: session must survive", status)
		}
		if len(f.notifier.all()) != 0 || f.lastOf(domain.EventAuthRejected) >= 0 {
			t.Fatalf("status %d: no notice or navigation expected", status)
		}
	}
}

func TestGateway_NetworkFailureKeepsSession(t *testing.T) {
	f := newFixture()
	f.login(admin())
	server, _ := newAPI(t, http.StatusOK, `{}`)
	server.Close()

	_, err := f.gateway(server.URL).Request(context.Background(), "/api/v1/cases", ports.RequestOptions{})
	if err == nil || !domain.IsNetworkFailure(err) {
		t.Fatalf("expected a network failure, got %v", err)
	}
	if domain.IsAuthFailure(err) {
		t.Fatalf("network failure must not look like an auth failure")
	}
	if _, ok := f.store.ReadToken(context.Background()); !ok {
		t.Fatalf("session must survive a network failure")
	}
	if len(f.notifier.all()) != 0 {
		t.Fatalf("no notice expected")
	}
}

func TestGateway_RejectsAbsolutePaths(t *testing.T) {
	f := newFixture()
	server, rec := newAPI(t, http.StatusOK, `{}`)
	gw := f.gateway(server.URL)

	for _, path := range []string{"https://evil.example.com/api", "//evil.example.com/api"} {
		_, err := gw.Request(context.Background(), path, ports.RequestOptions{})
		if !errors.Is(err, domain.ErrAbsolutePath) {
			t.Fatalf("%s: expected ErrAbsolutePath, got %v", path, err)
		}
	}
	if rec.count() != 0 {
		t.Fatalf("no request may leave for an absolute path")
	}
}

func TestGateway_UploadUsesMultipartBoundary(t *testing.T) {
	f := newFixture()
	f.login(investigator())

	type upload struct {
		auth, contentType, description, filename, content string
	}
	got := make(chan upload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := upload{auth: r.Header.Get("Authorization"), contentType: r.Header.Get("Content-Type")}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			u.description = r.FormValue("description")
			if file, header, err := r.FormFile("file"); err == nil {
				data, _ := io.ReadAll(file)
				file.Close()
				u.filename, u.content = header.Filename, string(data)
			}
		}
		got <- u
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	resp, err := f.gateway(server.URL).Upload(context.Background(), "/api/v1/cases/9/evidence", &ports.UploadForm{
		Fields: map[string]string{"description": "scene photo"},
		Files:  []ports.FormFile{{Field: "file", Filename: "scene.jpg", Content: strings.NewReader("jpeg")}},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()

	u := <-got
	if !strings.HasPrefix(u.contentType, "multipart/form-data; boundary=") {
		t.Fatalf("unexpected content type: %q", u.contentType)
	}
	if u.auth != "Bearer tok-1" {
		t.Fatalf("upload must carry the bearer token, got %q", u.auth)
	}
	if u.description != "scene photo" || u.filename != "scene.jpg" || u.content != "jpeg" {
		t.Fatalf("form not received intact: %+v", u)
	}
}

func TestGateway_UploadUnauthorized(t *testing.T) {
	f := newFixture()
	f.login(investigator())
	server, _ := newAPI(t, http.StatusUnauthorized, ``)

	_, err := f.gateway(server.URL).Upload(context.Background(), "/api/v1/cases/9/evidence", &ports.UploadForm{})
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if _, ok := f.store.ReadToken(context.Background()); ok {
		t.Fatalf("upload 401 must clear the session")
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 404: "4xx", 503: "5xx", 42: "42"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Fatalf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
