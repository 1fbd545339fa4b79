// Package openapi derives endpoint specs and test cases from OpenAPI 3
// documents.
package openapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/getkin/kin-openapi/openapi3"
)

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load reads an OpenAPI document from a file path or an http(s) URL. Any
// failure is a total *model.SpecParseError.
func Load(ctx context.Context, source string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var doc *openapi3.T
	var err error
	if isURL(source) {
		var u *url.URL
		u, err = url.Parse(source)
		if err == nil {
			doc, err = loader.LoadFromURI(u)
		}
		if err != nil {
			// some servers reject the loader's requests; fetch the body directly
			doc, err = loadFromURL(ctx, source)
		}
	} else {
		doc, err = loader.LoadFromFile(source)
	}
	if err != nil {
		return nil, &model.SpecParseError{Source: source, Err: err}
	}
	return doc, nil
}

// LoadData parses an OpenAPI document held in memory
func LoadData(ctx context.Context, data []byte, source string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, &model.SpecParseError{Source: source, Err: err}
	}
	return doc, nil
}

func loadFromURL(ctx context.Context, urlStr string) (*openapi3.T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch spec: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	return loader.LoadFromData(data)
}
