// Package http implements the remote stores against the storefront's REST
// backend (a json-server style API exposing /users and /products).
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const backendName = "user-backend"

// CircuitOpenFallback turns an open circuit into a retryable 503.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("storefront backend is temporarily unavailable")
}

// UserStore implements repository.UserStore over REST.
type UserStore struct {
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewUserStore creates a user store calling baseURL through client.
func NewUserStore(client httpclient.Doer, baseURL string, logger *slog.Logger) *UserStore {
	return &UserStore{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

func (s *UserStore) userURL(userID string) string {
	return s.baseURL + "/users/" + url.PathEscape(userID)
}

// FetchUser GETs /users/{id}.
func (s *UserStore) FetchUser(ctx context.Context, userID string) (domain.UserRecord, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet, s.userURL(userID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, httpclient.ParseResponseError(resp, backendName)
	}

	var record domain.UserRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("decode user %s: empty record", userID)
	}
	return record, nil
}

// ReplaceUser PUTs the full record to /users/{id}.
func (s *UserStore) ReplaceUser(ctx context.Context, userID string, record domain.UserRecord) error {
	return s.write(ctx, http.MethodPut, userID, record)
}

// PatchUser PATCHes the given fields of /users/{id}.
func (s *UserStore) PatchUser(ctx context.Context, userID string, fields domain.UserRecord) error {
	return s.write(ctx, http.MethodPatch, userID, fields)
}

func (s *UserStore) write(ctx context.Context, method, userID string, body domain.UserRecord) error {
	req, err := httpclient.NewJSONRequest(ctx, method, s.userURL(userID), body)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s user %s: %w", strings.ToLower(method), userID, err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, backendName)
	}

	s.logger.DebugContext(ctx, "user record written",
		slog.String("method", method),
		slog.String("user_id", userID),
		slog.Int("fields", len(body)),
	)
	return nil
}
