package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

const (
	loginPath          = "/api/v1/auth/login"
	signupPath         = "/api/v1/auth/signup"
	logoutPath         = "/api/v1/auth/logout"
	mePath             = "/api/v1/auth/me"
	profilePath        = "/api/v1/settings/profile"
	profilePicturePath = "/api/v1/settings/profile/picture"
	availabilityPath   = "/api/v1/investigator/availability"

	errorBodyLimit = 64 << 10
)

var _ ports.AuthService = (*AuthService)(nil)

// LogoutIntent arms the logout race guard.
type LogoutIntent interface {
	Begin()
}

// AuthService implements the session lifecycle flows: login and signup are
// plain calls against the API; everything after login goes through the
// gateway.
type AuthService struct {
	baseURL  string
	client   *http.Client
	gateway  ports.Gateway
	store    ports.CredentialStore
	events   ports.EventPublisher
	intent   LogoutIntent
	validate *validator.Validate
	log      zerolog.Logger
}

func NewAuthService(
	cfg GatewayConfig,
	gateway ports.Gateway,
	store ports.CredentialStore,
	events ports.EventPublisher,
	intent LogoutIntent,
	log zerolog.Logger,
) *AuthService {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &AuthService{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   client,
		gateway:  gateway,
		store:    store,
		events:   events,
		intent:   intent,
		validate: validator.New(),
		log:      log,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
	Message string          `json:"message"`
}

// Login exchanges credentials for a token and writes the session. Bad
// credentials (400) and pending or rejected accounts (403) come back as
// *domain.APIError; they never touch the stored session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	if email == "" || password == "" {
		return nil, &domain.APIError{Status: http.StatusBadRequest, Detail: "email and password are required"}
	}

	var out loginResponse
	if err := s.postPublic(ctx, loginPath, loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	ident, err := domain.ParseIdentity(out.User)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.store.WriteSession(ctx, out.Token, ident); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.log.Info().Int64("user_id", ident.ID).Str("role", string(ident.Role)).Msg("logged in")
	return ident.Clone(), nil
}

// Signup registers an account. No session is written: investigators must be
// approved before they can log in.
func (s *AuthService) Signup(ctx context.Context, req ports.SignupRequest) (*ports.SignupResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &domain.APIError{Status: http.StatusBadRequest, Detail: err.Error()}
	}
	if req.Role == string(domain.RoleInvestigator) && req.Specialization == "" {
		return nil, &domain.APIError{Status: http.StatusBadRequest, Detail: "specialization is required for investigators"}
	}

	var out ports.SignupResult
	if err := s.postPublic(ctx, signupPath, req, &out); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	s.log.Info().Str("role", req.Role).Bool("requires_approval", out.RequiresApproval).Msg("signed up")
	return &out, nil
}

// Logout is the self-initiated logout: arm the guard, tell the API, clear,
// navigate. A 401 racing with this call produces no notice.
func (s *AuthService) Logout(ctx context.Context) error {
	s.intent.Begin()

	resp, err := s.gateway.Request(ctx, logoutPath, ports.RequestOptions{Method: http.MethodPost})
	switch {
	case err == nil:
		_ = resp.Body.Close()
	case domain.IsAuthFailure(err):
		// The gateway has cleared the session and published auth_rejected,
		// which already navigates.
		s.log.Info().Msg("logged out, session was already rejected")
		return nil
	default:
		s.log.Warn().Err(err).Msg("logout call failed, clearing locally")
	}

	if err := s.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.events.Publish(ctx, domain.SessionEvent{Kind: domain.EventLogoutRequested})
	s.log.Info().Msg("logged out")
	return nil
}

// Refresh re-reads the identity from GET /auth/me and merges it.
func (s *AuthService) Refresh(ctx context.Context) (*domain.Identity, error) {
	fields, err := s.callJSON(ctx, mePath, ports.RequestOptions{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return s.merge(ctx, "refresh", fields)
}

// UpdateProfile saves profile fields and merges the API's answer.
func (s *AuthService) UpdateProfile(ctx context.Context, fields map[string]any) (*domain.Identity, error) {
	out, err := s.callJSON(ctx, profilePath, ports.RequestOptions{Method: http.MethodPut, Body: fields})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.merge(ctx, "update profile", out)
}

// UploadProfilePicture sends a new picture and merges the returned path.
func (s *AuthService) UploadProfilePicture(ctx context.Context, filename string, content io.Reader) (*domain.Identity, error) {
	resp, err := s.gateway.Upload(ctx, profilePicturePath, &ports.UploadForm{
		Files: []ports.FormFile{{Field: "file", Filename: filename, Content: content}},
	})
	if err != nil {
		return nil, fmt.Errorf("upload profile picture: %w", err)
	}
	out, err := decodeObject(resp)
	if err != nil {
		return nil, fmt.Errorf("upload profile picture: %w", err)
	}
	partial := map[string]any{}
	for _, k := range []string{"profile_picture", "profile_picture_url"} {
		if v, ok := out[k]; ok && v != nil {
			partial["profile_picture"] = v
		}
	}
	return s.merge(ctx, "upload profile picture", partial)
}

// SetAvailability toggles the investigator's availability flag. The flag is
// written into the stored investigator_profile object, so profile keys the
// client does not model are kept.
func (s *AuthService) SetAvailability(ctx context.Context, available bool) (*domain.Identity, error) {
	if s.store.CurrentIdentity(ctx) == nil {
		return nil, fmt.Errorf("set availability: %w", domain.ErrNoSession)
	}

	out, err := s.callJSON(ctx, availabilityPath, ports.RequestOptions{
		Method: http.MethodPut,
		Body:   map[string]bool{"is_available": available},
	})
	if err != nil {
		return nil, fmt.Errorf("set availability: %w", err)
	}
	if v, ok := out["is_available"].(bool); ok {
		available = v
	}

	err = s.store.UpdateIdentity(ctx, func(current map[string]any) {
		profile, _ := current["investigator_profile"].(map[string]any)
		if profile == nil {
			profile = map[string]any{}
		}
		profile["is_available"] = available
		current["investigator_profile"] = profile
	})
	if err != nil {
		return nil, fmt.Errorf("set availability: %w", err)
	}
	return s.current(ctx, "set availability")
}

// merge writes the API's answer over the stored identity. Explicit nulls
// are kept: the API's value wins, including a reset to "unset".
func (s *AuthService) merge(ctx context.Context, op string, fields map[string]any) (*domain.Identity, error) {
	if err := s.store.MergeIdentity(ctx, fields); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.current(ctx, op)
}

func (s *AuthService) current(ctx context.Context, op string) (*domain.Identity, error) {
	ident := s.store.CurrentIdentity(ctx)
	if ident == nil {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNoSession)
	}
	return ident, nil
}

// callJSON runs an authenticated call and decodes a 2xx JSON object.
func (s *AuthService) callJSON(ctx context.Context, path string, opts ports.RequestOptions) (map[string]any, error) {
	resp, err := s.gateway.Request(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// postPublic runs an unauthenticated JSON POST. It bypasses the gateway on
// purpose: a stale token must not be sent, and a 403 here is an account
// state, not a session failure.
func (s *AuthService) postPublic(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	target, err := resolvePath(s.baseURL, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mimeJSON)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("api call failed without response")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DecodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeObject(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, DecodeAPIError(resp)
	}
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// DecodeAPIError reads FastAPI's {"detail": ...}; detail is a string for
// HTTPException and a list for validation errors.
func DecodeAPIError(resp *http.Response) *domain.APIError {
	apiErr := &domain.APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &body) != nil || len(body.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(data))
		return apiErr
	}
	var text string
	if json.Unmarshal(body.Detail, &text) == nil {
		apiErr.Detail = text
	} else {
		apiErr.Detail = string(body.Detail)
	}
	return apiErr
}
