package excel

import "strings"

// Logical column names
const (
	ColName           = "name"
	ColTestCaseName   = "testcasename"
	ColMethod         = "method"
	ColURL            = "url"
	ColBaseURL        = "base_url"
	ColPath           = "path"
	ColHeaders        = "headers"
	ColPayload        = "payload"
	ColExpectedStatus = "expected_status"
	ColPathParams     = "path_params"
	ColQueryParams    = "query_params"
	ColFolder         = "folder"
	ColAssertions     = "assertions"
	ColID             = "id"
)

// Synonyms maps each logical column to the header spellings it accepts
var Synonyms = map[string][]string{
	ColName:           {"name", "testname", "case", "title", "apiname", "api name", "testcasename"},
	ColTestCaseName:   {"testcasename", "test case name"},
	ColMethod:         {"method", "httpmethod", "verb", "http method"},
	ColURL:            {"url", "fullurl", "requesturl"},
	ColBaseURL:        {"baseurl", "base_url", "host"},
	ColPath:           {"path", "endpoint", "route", "uri"},
	ColHeaders:        {"headers", "requestheaders"},
	ColPayload:        {"payload", "body", "requestbody", "data"},
	ColExpectedStatus: {"expectedstatus", "expected_status", "status", "expected", "expectedcode", "code"},
	ColPathParams:     {"pathparams", "path_parameters", "path_param", "routeparams"},
	ColQueryParams:    {"queryparams", "query_parameters", "query", "params"},
	ColFolder:         {"folder", "group", "suite", "collection", "module"},
	ColAssertions:     {"expectedresponseassertions", "responseassertions", "assertions", "expected_response_assertions"},
	ColID:             {"id", "testcaseid", "testcase_id", "test_id", "tcid"},
}

// Result columns written back by the report writer
const (
	ActualStatusHeader = "ActualStatus"
	StatusHeader       = "Status"
)

var headerReplacer = strings.NewReplacer(" ", "", "_", "", "-", "")

// norm lower-cases a header and drops separators so "Base URL", "base_url"
// and "BaseURL" compare equal
func norm(s string) string {
	return headerReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// HeaderIndex maps normalized header names to their 0-based column index
type HeaderIndex map[string]int

// NewHeaderIndex indexes a header row. The first occurrence of a name wins.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		n := norm(h)
		if n == "" {
			continue
		}
		if _, exists := idx[n]; !exists {
			idx[n] = i
		}
	}
	return idx
}

// Find returns the column of a logical name, or -1
func (h HeaderIndex) Find(logical string) int {
	for _, syn := range Synonyms[logical] {
		if i, ok := h[norm(syn)]; ok {
			return i
		}
	}
	return -1
}
