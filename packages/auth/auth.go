// Package auth performs the optional pre-flight token request and describes
// how the token is injected into every built request.
package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Injection is the header every request carries once a token is resolved
type Injection struct {
	Header string
	Prefix string
	Token  string
}

// Value returns the header value
func (i *Injection) Value() string {
	return i.Prefix + i.Token
}

// Bearer reports whether the injection is a standard bearer Authorization
// header
func (i *Injection) Bearer() bool {
	return strings.EqualFold(i.Header, "Authorization") &&
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(i.Prefix)), "bearer")
}

// Resolver fetches the token described by an AuthConfig
type Resolver struct {
	cfg        *config.AuthConfig
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Option is a functional option for Resolver
type Option func(*Resolver)

// WithHTTPClient sets the HTTP client used for the token call
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		r.log = logging.OrNop(l)
	}
}

// NewResolver creates a resolver for cfg. baseURL is the auth base URL after
// the gateway fallback has been applied.
func NewResolver(cfg *config.AuthConfig, baseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:     cfg,
		baseURL: baseURL,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if !cfg.GetVerify() {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		r.httpClient = &http.Client{Transport: transport}
	}
	return r
}

// JoinURL joins a base URL and an endpoint path with exactly one slash
func JoinURL(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// Resolve performs the token call. Every failure is a *model.AuthError.
func (r *Resolver) Resolve(ctx context.Context) (*Injection, error) {
	if r.cfg.Endpoint == "" {
		return nil, &model.AuthError{Reason: "auth endpoint not configured"}
	}
	if r.baseURL == "" && !strings.Contains(r.cfg.Endpoint, "://") {
		return nil, &model.AuthError{Reason: "auth base URL not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.GetTimeout())
	defer cancel()

	req, err := r.newRequest(ctx)
	if err != nil {
		return nil, &model.AuthError{Reason: "invalid auth request", Err: err}
	}

	r.log.Debug("requesting auth token", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &model.AuthError{Reason: "auth call failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.AuthError{Reason: "reading auth response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.AuthError{Reason: "auth endpoint rejected the request", StatusCode: resp.StatusCode}
	}

	token, err := ExtractToken(body, r.cfg.GetTokenPath())
	if err != nil {
		return nil, &model.AuthError{Reason: err.Error(), StatusCode: resp.StatusCode}
	}

	r.log.Info("auth token resolved", zap.String("header", r.cfg.GetHeaderName()))

	return &Injection{
		Header: r.cfg.GetHeaderName(),
		Prefix: r.cfg.GetHeaderPrefix(),
		Token:  token,
	}, nil
}

func (r *Resolver) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.cfg.Body) > 0 {
		data, err := json.Marshal(r.cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding auth body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.cfg.GetMethod(), JoinURL(r.baseURL, r.cfg.Endpoint), body)
	if err != nil {
		return nil, err
	}

	if len(r.cfg.Headers) == 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// ExtractToken walks a dot path through a JSON document. Numeric segments
// index arrays. The path must end on a non-empty scalar; booleans yield
// "true" or "false".
func ExtractToken(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("auth response is not valid JSON")
	}

	result := gjson.ParseBytes(body)
	if path != "" {
		result = gjson.GetBytes(body, escapePath(path))
	}

	switch result.Type {
	case gjson.String, gjson.Number:
		if result.String() == "" {
			break
		}
		// Raw keeps large integers intact
		if result.Type == gjson.Number {
			return result.Raw, nil
		}
		return result.String(), nil
	case gjson.True, gjson.False:
		return result.Raw, nil
	case gjson.JSON:
		return "", fmt.Errorf("token path %q resolves to a non-scalar value", path)
	}
	return "", fmt.Errorf("token not found at path %q", path)
}

// escapePath escapes gjson syntax inside each dot-separated segment so that
// keys are matched literally
func escapePath(path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		var sb strings.Builder
		for _, r := range p {
			switch r {
			case '*', '?', '|', '#', '@', '!', '\\', '=', '<', '>', '%':
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
		parts[i] = sb.String()
	}
	return strings.Join(parts, ".")
}
