package excel

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"go.uber.org/zap"
)

// Converter turns worksheet rows into test cases
type Converter struct {
	log *zap.Logger
}

// Option is a functional option for Converter
type Option func(*Converter)

// WithLogger sets the logger used for skipped-row warnings
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		c.log = logging.OrNop(l)
	}
}

// NewConverter creates a new row converter
func NewConverter(opts ...Option) *Converter {
	c := &Converter{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CaseID returns the identifier of the test case read from a sheet row
func CaseID(sheet string, row int) string {
	return fmt.Sprintf("%s!R%d", sheet, row)
}

type columns struct {
	name, testCaseName, method, url, baseURL, path    int
	headers, payload, expected, pathParams, queryParams int
	folder, assertions, id                            int
}

func resolveColumns(h HeaderIndex) columns {
	return columns{
		name:         h.Find(ColName),
		testCaseName: h.Find(ColTestCaseName),
		method:       h.Find(ColMethod),
		url:          h.Find(ColURL),
		baseURL:      h.Find(ColBaseURL),
		path:         h.Find(ColPath),
		headers:      h.Find(ColHeaders),
		payload:      h.Find(ColPayload),
		expected:     h.Find(ColExpectedStatus),
		pathParams:   h.Find(ColPathParams),
		queryParams:  h.Find(ColQueryParams),
		folder:       h.Find(ColFolder),
		assertions:   h.Find(ColAssertions),
		id:           h.Find(ColID),
	}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// fillDown carries the last non-empty value of a column down the sheet
type fillDown struct {
	last string
}

func (f *fillDown) next(v string) string {
	if v != "" {
		f.last = v
	}
	return f.last
}

// Convert reads every sheet. Rows missing a required field are returned as
// *model.MissingFieldError values and do not produce a case.
func (c *Converter) Convert(sheets []Sheet) ([]model.TestCase, []error) {
	var cases []model.TestCase
	var skipped []error

	for _, sheet := range sheets {
		if len(sheet.Rows) == 0 {
			continue
		}
		header := NewHeaderIndex(sheet.Rows[0])
		if len(header) == 0 {
			continue
		}
		cols := resolveColumns(header)

		var name, method, rawURL, baseURL, path fillDown
		folder := fillDown{last: sheet.Name}

		for i, row := range sheet.Rows[1:] {
			rowNum := i + 2
			if blank(row) {
				continue
			}

			caseName := cell(row, cols.name)
			if caseName == "" {
				caseName = cell(row, cols.testCaseName)
			}
			caseName = name.next(caseName)
			if caseName == "" {
				caseName = "Unnamed"
			}

			tc := model.TestCase{
				ID:      CaseID(sheet.Name, rowNum),
				Name:    caseName,
				Folder:  folder.next(cell(row, cols.folder)),
				Method:  strings.ToUpper(method.next(cell(row, cols.method))),
				URL:     rawURL.next(cell(row, cols.url)),
				BaseURL: baseURL.next(cell(row, cols.baseURL)),
				Path:    path.next(cell(row, cols.path)),
				Origin: model.Origin{
					Sheet: sheet.Name,
					Row:   rowNum,
					Label: cell(row, cols.id),
				},
			}
			if tc.Method == "" {
				tc.Method = "GET"
			}
			if tc.Origin.Label == "" {
				tc.Origin.Label = caseName
			}

			if tc.URL == "" && tc.Path == "" {
				err := &model.MissingFieldError{Sheet: sheet.Name, Row: rowNum, Field: "endpoint"}
				c.log.Warn("skipping test case row", zap.Error(err))
				skipped = append(skipped, err)
				continue
			}

			status, ok := ParseStatus(cell(row, cols.expected))
			if !ok {
				err := &model.MissingFieldError{Sheet: sheet.Name, Row: rowNum, Field: "expected_status"}
				c.log.Warn("skipping test case row", zap.Error(err))
				skipped = append(skipped, err)
				continue
			}
			tc.ExpectedStatus = status

			tc.Headers = ParseKV(cell(row, cols.headers))
			tc.PathParams = ParseKV(cell(row, cols.pathParams))
			tc.QueryParams = ParseKV(cell(row, cols.queryParams))
			tc.Body = cell(row, cols.payload)

			if raw := cell(row, cols.assertions); raw != "" {
				assertions, err := ParseAssertions(raw)
				if err != nil {
					c.log.Warn("ignoring invalid assertions cell",
						zap.String("case", tc.ID), zap.Error(err))
				}
				tc.Assertions = assertions
			}

			cases = append(cases, tc)
		}
	}

	return cases, skipped
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseAssertions reads {"field.path": {"operator": expected}} into field
// assertions ordered by field and operator.
func ParseAssertions(raw string) ([]model.FieldAssertion, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var parsed map[string]any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("assertions must be a JSON object: %w", err)
	}

	fields := make([]string, 0, len(parsed))
	for f := range parsed {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []model.FieldAssertion
	for _, field := range fields {
		conditions, ok := parsed[field].(map[string]any)
		if !ok {
			continue
		}
		ops := make([]string, 0, len(conditions))
		for op := range conditions {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			out = append(out, model.FieldAssertion{
				Field:    field,
				Operator: op,
				Expected: conditions[op],
			})
		}
	}
	return out, nil
}
