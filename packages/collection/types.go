package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaURL identifies the Postman collection format version
const SchemaURL = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// Collection is a Postman v2.1 collection with one level of folders
type Collection struct {
	Info Info      `json:"info"`
	Item []*Folder `json:"item"`
	Auth *Auth     `json:"auth,omitempty"`
}

// Info is the collection header
type Info struct {
	PostmanID string `json:"_postman_id"`
	Name      string `json:"name"`
	Schema    string `json:"schema"`
}

// Folder groups items for readability
type Folder struct {
	Name string  `json:"name"`
	Item []*Item `json:"item"`
}

// Item is a single request with its test script
type Item struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Request *Request `json:"request"`
	Event   []Event  `json:"event,omitempty"`
}

// Request is a fully materialized HTTP request
type Request struct {
	Method string   `json:"method"`
	Header []Header `json:"header"`
	URL    URL      `json:"url"`
	Body   *Body    `json:"body,omitempty"`
}

// Header is a request header
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// URL is the structured form of a request URL
type URL struct {
	Raw      string       `json:"raw"`
	Protocol string       `json:"protocol,omitempty"`
	Host     []string     `json:"host,omitempty"`
	Port     string       `json:"port,omitempty"`
	Path     []string     `json:"path,omitempty"`
	Query    []QueryParam `json:"query,omitempty"`
}

// QueryParam is a query string entry
type QueryParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Body is a raw request body
type Body struct {
	Mode    string       `json:"mode"`
	Raw     string       `json:"raw"`
	Options *BodyOptions `json:"options,omitempty"`
}

// BodyOptions carries the raw body language hint
type BodyOptions struct {
	Raw struct {
		Language string `json:"language"`
	} `json:"raw"`
}

// Event attaches a script to a request lifecycle hook
type Event struct {
	Listen string `json:"listen"`
	Script Script `json:"script"`
}

// Script is a JavaScript snippet run by the collection runner
type Script struct {
	Type string   `json:"type"`
	Exec []string `json:"exec"`
}

// Auth is collection level authentication
type Auth struct {
	Type   string          `json:"type"`
	Bearer []AuthAttribute `json:"bearer,omitempty"`
}

// AuthAttribute is a key/value of an auth definition
type AuthAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Items returns every item in folder order
func (c *Collection) Items() []*Item {
	var items []*Item
	for _, f := range c.Item {
		items = append(items, f.Item...)
	}
	return items
}

// Len returns the number of items
func (c *Collection) Len() int {
	n := 0
	for _, f := range c.Item {
		n += len(f.Item)
	}
	return n
}

// Marshal encodes the collection as indented JSON
func (c *Collection) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// WriteFile validates the collection and writes it to path
func (c *Collection) WriteFile(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}
	if err := Validate(data); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// FileName returns the file name used for a collection called name
func FileName(name string) string {
	return sanitizeFileName(name) + "_postman_collection.json"
}
