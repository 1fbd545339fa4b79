package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/auth"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "COPY": true, "LINK": true, "UNLINK": true,
	"PURGE": true, "LOCK": true, "UNLOCK": true, "PROPFIND": true, "VIEW": true,
}

var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// paramPattern matches {{variable}} (left alone) and {param} placeholders
var paramPattern = regexp.MustCompile(`\{\{[^{}]*\}\}|\{([^{}]+)\}`)

// Builder turns test cases into a collection
type Builder struct {
	name           string
	gatewayBaseURL string
	defaultHeaders map[string]string
	auth           *auth.Injection
	log            *zap.Logger
}

// Option is a functional option for Builder
type Option func(*Builder)

// WithName sets the collection name
func WithName(name string) Option {
	return func(b *Builder) {
		b.name = name
	}
}

// WithGatewayBaseURL routes every case that has a path through base
func WithGatewayBaseURL(base string) Option {
	return func(b *Builder) {
		b.gatewayBaseURL = base
	}
}

// WithDefaultHeaders sets headers applied before each case's own headers
func WithDefaultHeaders(h map[string]string) Option {
	return func(b *Builder) {
		b.defaultHeaders = h
	}
}

// WithAuth injects a resolved token into every request
func WithAuth(inj *auth.Injection) Option {
	return func(b *Builder) {
		b.auth = inj
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		b.log = logging.OrNop(l)
	}
}

// NewBuilder creates a collection builder
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		name: "API Tests",
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build materializes one item per case. A case that cannot be turned into a
// request is returned as a *model.BuildError instead of an item; the rest of
// the batch is unaffected.
func (b *Builder) Build(cases []model.TestCase) (*Collection, []*model.BuildError) {
	coll := &Collection{
		Info: Info{
			Name:   b.name,
			Schema: SchemaURL,
		},
		Item: []*Folder{},
	}
	if b.auth != nil && b.auth.Bearer() {
		coll.Auth = &Auth{
			Type:   "bearer",
			Bearer: []AuthAttribute{{Key: "token", Value: b.auth.Token, Type: "string"}},
		}
	}

	var failures []*model.BuildError
	folders := make(map[string]*Folder)
	seen := make(map[string]bool, len(cases))
	ids := make([]string, 0, len(cases))

	for i := range cases {
		tc := &cases[i]

		if seen[tc.ID] {
			failures = append(failures, &model.BuildError{CaseID: tc.ID, Reason: "duplicate correlation id"})
			continue
		}
		seen[tc.ID] = true

		item, err := b.BuildItem(tc)
		if err != nil {
			var buildErr *model.BuildError
			if !errors.As(err, &buildErr) {
				buildErr = &model.BuildError{CaseID: tc.ID, Reason: err.Error()}
			}
			b.log.Warn("test case not built", zap.String("case", tc.ID), zap.String("reason", buildErr.Reason))
			failures = append(failures, buildErr)
			continue
		}

		folderName := tc.Folder
		if folderName == "" {
			folderName = "default"
		}
		key := strings.ToLower(strings.TrimSpace(folderName))
		folder, ok := folders[key]
		if !ok {
			folder = &Folder{Name: folderName, Item: []*Item{}}
			folders[key] = folder
			coll.Item = append(coll.Item, folder)
		}
		folder.Item = append(folder.Item, item)
		ids = append(ids, tc.ID)
	}

	coll.Info.PostmanID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("apiregress:"+b.name+"\n"+strings.Join(ids, "\n"))).String()

	b.log.Debug("collection built",
		zap.String("name", b.name),
		zap.Int("items", len(ids)),
		zap.Int("folders", len(coll.Item)),
		zap.Int("failures", len(failures)))

	return coll, failures
}

// ItemName returns the item name for a case, tagged with its id
func ItemName(tc *model.TestCase) string {
	name := tc.Name
	if name == "" {
		name = tc.ID
	}
	return fmt.Sprintf("%s [%s]", name, tc.ID)
}

// BuildItem materializes the request and test script of a single case
func (b *Builder) BuildItem(tc *model.TestCase) (*Item, error) {
	method := strings.ToUpper(strings.TrimSpace(tc.Method))
	if !validMethods[method] {
		return nil, &model.BuildError{CaseID: tc.ID, Reason: fmt.Sprintf("invalid HTTP method %q", tc.Method)}
	}

	rawURL, err := b.resolveURL(tc)
	if err != nil {
		return nil, err
	}

	reqURL, err := buildURL(tc, rawURL)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: method,
		Header: b.headers(tc),
		URL:    reqURL,
	}

	if bodyMethods[method] && strings.TrimSpace(tc.Body) != "" {
		req.Body = buildBody(tc.Body)
	}

	exec, unknown := TestScript(tc)
	for _, a := range unknown {
		b.log.Warn("ignoring assertion with unknown operator",
			zap.String("case", tc.ID), zap.String("field", a.Field), zap.String("operator", a.Operator))
	}

	return &Item{
		ID:      tc.ID,
		Name:    ItemName(tc),
		Request: req,
		Event: []Event{{
			Listen: "test",
			Script: Script{Type: "text/javascript", Exec: exec},
		}},
	}, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func isAbsolute(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// resolveURL picks the request URL: gateway override plus path, then the full
// URL, then base URL plus path, then an absolute path
func (b *Builder) resolveURL(tc *model.TestCase) (string, error) {
	path := strings.TrimSpace(tc.Path)
	switch {
	case b.gatewayBaseURL != "" && path != "" && !isAbsolute(path):
		return joinURL(b.gatewayBaseURL, path), nil
	case strings.TrimSpace(tc.URL) != "":
		return strings.TrimSpace(tc.URL), nil
	case tc.BaseURL != "" && path != "" && !isAbsolute(path):
		return joinURL(tc.BaseURL, path), nil
	case isAbsolute(path):
		return path, nil
	}
	if path == "" {
		return "", &model.BuildError{CaseID: tc.ID, Reason: "no URL or path"}
	}
	return "", &model.BuildError{CaseID: tc.ID, Reason: fmt.Sprintf("no base URL for path %q", path)}
}

// substitutePathParams replaces {name} placeholders, leaving {{variables}}
// untouched. Any placeholder left without a value is an error.
func substitutePathParams(tc *model.TestCase, raw string) (string, error) {
	var missing []string
	out := paramPattern.ReplaceAllStringFunc(raw, func(m string) string {
		if strings.HasPrefix(m, "{{") {
			return m
		}
		name := m[1 : len(m)-1]
		if v, ok := tc.PathParams[name]; ok {
			return v
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", &model.BuildError{
			CaseID: tc.ID,
			Reason: fmt.Sprintf("unresolved path parameter {%s}", strings.Join(missing, "}, {")),
		}
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildURL(tc *model.TestCase, raw string) (URL, error) {
	raw, err := substitutePathParams(tc, raw)
	if err != nil {
		return URL{}, err
	}

	// Runner variables cannot be parsed as a URL; keep the raw form only
	if strings.Contains(raw, "{{") {
		query := make([]QueryParam, 0, len(tc.QueryParams))
		var parts []string
		for _, k := range sortedKeys(tc.QueryParams) {
			query = append(query, QueryParam{Key: k, Value: tc.QueryParams[k]})
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(tc.QueryParams[k]))
		}
		if len(parts) > 0 {
			sep := "?"
			if strings.Contains(raw, "?") {
				sep = "&"
			}
			raw += sep + strings.Join(parts, "&")
		}
		u := URL{Raw: raw}
		if len(query) > 0 {
			u.Query = query
		}
		return u, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return URL{}, &model.BuildError{CaseID: tc.ID, Reason: fmt.Sprintf("unparsable URL %q: %v", raw, err)}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return URL{}, &model.BuildError{CaseID: tc.ID, Reason: fmt.Sprintf("URL %q is not absolute", raw)}
	}

	// existing query keeps its order, case query params override and append
	var query []QueryParam
	index := make(map[string]int)
	for _, pair := range strings.Split(parsed.RawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}
		if i, ok := index[k]; ok {
			query[i].Value = v
			continue
		}
		index[k] = len(query)
		query = append(query, QueryParam{Key: k, Value: v})
	}
	for _, k := range sortedKeys(tc.QueryParams) {
		v := tc.QueryParams[k]
		if i, ok := index[k]; ok {
			query[i].Value = v
			continue
		}
		index[k] = len(query)
		query = append(query, QueryParam{Key: k, Value: v})
	}

	parts := make([]string, 0, len(query))
	for _, q := range query {
		parts = append(parts, url.QueryEscape(q.Key)+"="+url.QueryEscape(q.Value))
	}
	parsed.RawQuery = strings.Join(parts, "&")

	u := URL{
		Raw:      parsed.String(),
		Protocol: parsed.Scheme,
		Host:     strings.Split(parsed.Hostname(), "."),
		Port:     parsed.Port(),
		Query:    query,
	}
	for _, seg := range strings.Split(parsed.EscapedPath(), "/") {
		if seg != "" {
			u.Path = append(u.Path, seg)
		}
	}
	return u, nil
}

// headerList is an ordered header set with case-insensitive keys
type headerList struct {
	headers []Header
	index   map[string]int
}

func (h *headerList) set(key, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	lower := strings.ToLower(key)
	if i, ok := h.index[lower]; ok {
		h.headers[i].Value = value
		return
	}
	h.index[lower] = len(h.headers)
	h.headers = append(h.headers, Header{Key: key, Value: value})
}

func (b *Builder) headers(tc *model.TestCase) []Header {
	var h headerList
	for _, k := range sortedKeys(b.defaultHeaders) {
		h.set(k, b.defaultHeaders[k])
	}
	for _, k := range sortedKeys(tc.Headers) {
		h.set(k, tc.Headers[k])
	}
	if len(h.headers) == 0 {
		h.set("Content-Type", "application/json")
	}
	if b.auth != nil {
		h.set(b.auth.Header, b.auth.Value())
	}
	if h.headers == nil {
		return []Header{}
	}
	return h.headers
}

func buildBody(raw string) *Body {
	body := &Body{Mode: "raw", Raw: raw}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(raw)), "", "  "); err == nil {
		body.Raw = buf.String()
		body.Options = &BodyOptions{}
		body.Options.Raw.Language = "json"
	}
	return body
}

// sanitizeFileName replaces characters that are unsafe in file names
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "collection"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
