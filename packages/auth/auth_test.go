package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestResolve(t *testing.T) {
	var gotBody map[string]any
	var gotMethod, gotPath, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"token": "abc123"}}`))
	}))
	defer server.Close()

	cfg := &config.AuthConfig{
		Endpoint:  "/auth/login",
		Body:      map[string]any{"user": "u", "pass": "p"},
		TokenPath: "data.token",
	}
	inj, err := NewResolver(cfg, server.URL+"/").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/auth/login", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"user": "u", "pass": "p"}, gotBody)

	assert.Equal(t, "Authorization", inj.Header)
	assert.Equal(t, "Bearer abc123", inj.Value())
	assert.True(t, inj.Bearer())
}

func TestResolveCustomHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "k", r.Header.Get("X-Key"))
		_, _ = w.Write([]byte(`{"token": "t"}`))
	}))
	defer server.Close()

	cfg := &config.AuthConfig{
		Endpoint:     "token",
		Method:       "get",
		Headers:      map[string]string{"X-Key": "k"},
		HeaderName:   "X-Api-Token",
		HeaderPrefix: strPtr(""),
	}
	inj, err := NewResolver(cfg, server.URL).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "X-Api-Token", inj.Header)
	assert.Equal(t, "t", inj.Value())
	assert.False(t, inj.Bearer())
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		path       string
		timeout    string
		delay      time.Duration
		wantStatus int
	}{
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"no"}`, wantStatus: 403},
		{name: "server error", status: http.StatusInternalServerError, body: ``, wantStatus: 500},
		{name: "not json", status: 200, body: `<html>`, wantStatus: 200},
		{name: "missing path", status: 200, body: `{"other": 1}`, wantStatus: 200},
		{name: "object at path", status: 200, body: `{"token": {"v": 1}}`, wantStatus: 200},
		{name: "empty token", status: 200, body: `{"token": ""}`, wantStatus: 200},
		{name: "null token", status: 200, body: `{"token": null}`, wantStatus: 200},
		{name: "timeout", status: 200, body: `{"token": "x"}`, timeout: "50ms", delay: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			cfg := &config.AuthConfig{Endpoint: "/login", TokenPath: tt.path, Timeout: tt.timeout}
			inj, err := NewResolver(cfg, server.URL).Resolve(context.Background())
			assert.Nil(t, inj)

			var authErr *model.AuthError
			require.True(t, errors.As(err, &authErr), "got %v", err)
			assert.Equal(t, tt.wantStatus, authErr.StatusCode)
			assert.True(t, model.IsFatal(err))
		})
	}
}

func TestResolveRequiresEndpoint(t *testing.T) {
	_, err := NewResolver(&config.AuthConfig{}, "http://x").Resolve(context.Background())
	var authErr *model.AuthError
	assert.True(t, errors.As(err, &authErr))

	_, err = NewResolver(&config.AuthConfig{Endpoint: "/login"}, "").Resolve(context.Background())
	assert.True(t, errors.As(err, &authErr))
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		path    string
		want    string
		wantErr bool
	}{
		{"top level", `{"token": "a"}`, "token", "a", false},
		{"nested", `{"data": {"auth": {"token": "b"}}}`, "data.auth.token", "b", false},
		{"array index", `{"items": [{"token": "c"}, {"token": "d"}]}`, "items.1.token", "d", false},
		{"number", `{"token": 12345678901234567890}`, "token", "12345678901234567890", false},
		{"literal key chars", `{"a*b": {"token": "e"}}`, "a*b.token", "e", false},
		{"bool true", `{"token": true}`, "token", "true", false},
		{"bool false", `{"data": {"token": false}}`, "data.token", "false", false},
		{"null", `{"token": null}`, "token", "", true},
		{"empty string", `{"token": ""}`, "token", "", true},
		{"array", `{"token": [1]}`, "token", "", true},
		{"out of range", `{"items": []}`, "items.0", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken([]byte(tt.body), tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h/api/login", JoinURL("http://h/api/", "/login"))
	assert.Equal(t, "http://h/login", JoinURL("http://h", "login"))
	assert.Equal(t, "https://other/login", JoinURL("http://h", "https://other/login"))
}
