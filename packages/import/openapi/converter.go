package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

// Converter converts OpenAPI operations into endpoint specs and test cases
type Converter struct {
	baseURL     string
	includeTags []string
	excludeTags []string
	includeOnly []string // specific operation IDs
	log         *zap.Logger
}

// Option is a functional option for Converter
type Option func(*Converter)

// WithBaseURL sets a custom base URL, overriding the one from spec
func WithBaseURL(url string) Option {
	return func(c *Converter) {
		c.baseURL = url
	}
}

// WithTags filters operations by tags
func WithTags(tags []string) Option {
	return func(c *Converter) {
		c.includeTags = tags
	}
}

// WithExcludeTags excludes operations with these tags
func WithExcludeTags(tags []string) Option {
	return func(c *Converter) {
		c.excludeTags = tags
	}
}

// WithOperations filters to specific operation IDs
func WithOperations(ops []string) Option {
	return func(c *Converter) {
		c.includeOnly = ops
	}
}

// WithLogger sets the logger used for skipped operations
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		c.log = logging.OrNop(l)
	}
}

// NewConverter creates a new OpenAPI converter
func NewConverter(opts ...Option) *Converter {
	c := &Converter{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the outcome of converting one document
type Result struct {
	Endpoints []*model.EndpointSpec
	Cases     []model.TestCase
	// Skipped holds a *model.SpecParseError per rejected operation
	Skipped []error
}

// CaseID returns the identifier of a scenario derived from an operation
func CaseID(method, path string, scenario int) string {
	return fmt.Sprintf("%s %s#%d", method, path, scenario)
}

// Convert walks the document in path order and derives one endpoint and one
// test case per included operation. Invalid operations are skipped.
func (c *Converter) Convert(ctx context.Context, doc *openapi3.T, source string) Result {
	var res Result
	if doc == nil || doc.Paths == nil {
		return res
	}

	if err := doc.Validate(ctx); err != nil {
		// Some specs have minor validation issues; operations are checked one by one below
		c.log.Warn("OpenAPI spec validation", zap.String("source", source), zap.Error(err))
	}

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = c.getBaseURL(doc)
	}

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for path := range pathMap {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		pathItem := pathMap[path]
		if pathItem == nil {
			continue
		}

		operations := []struct {
			method string
			op     *openapi3.Operation
		}{
			{"GET", pathItem.Get},
			{"POST", pathItem.Post},
			{"PUT", pathItem.Put},
			{"PATCH", pathItem.Patch},
			{"DELETE", pathItem.Delete},
			{"HEAD", pathItem.Head},
			{"OPTIONS", pathItem.Options},
		}

		for _, op := range operations {
			if op.op == nil || !c.shouldInclude(op.op) {
				continue
			}

			if err := op.op.Validate(ctx); err != nil {
				perr := &model.SpecParseError{Source: source, Operation: op.method + " " + path, Err: err}
				c.log.Warn("skipping operation", zap.Error(perr))
				res.Skipped = append(res.Skipped, perr)
				continue
			}

			ep := c.endpoint(path, op.method, op.op, pathItem.Parameters)
			res.Endpoints = append(res.Endpoints, ep)
			res.Cases = append(res.Cases, c.testCase(ep, op.op, baseURL))
		}
	}

	return res
}

func (c *Converter) getBaseURL(doc *openapi3.T) string {
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		return doc.Servers[0].URL
	}
	return "http://localhost:3000"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *Converter) shouldInclude(op *openapi3.Operation) bool {
	if len(c.includeOnly) > 0 && !contains(c.includeOnly, op.OperationID) {
		return false
	}

	if len(c.includeTags) > 0 {
		found := false
		for _, tag := range op.Tags {
			if contains(c.includeTags, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, tag := range op.Tags {
		if contains(c.excludeTags, tag) {
			return false
		}
	}

	return true
}

// mergeParameters applies operation parameters over path-level ones, keyed
// by location and name
func mergeParameters(pathParams, opParams openapi3.Parameters) []*openapi3.Parameter {
	var order []string
	merged := make(map[string]*openapi3.Parameter)
	for _, list := range []openapi3.Parameters{pathParams, opParams} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			key := ref.Value.In + ":" + ref.Value.Name
			if _, seen := merged[key]; !seen {
				order = append(order, key)
			}
			merged[key] = ref.Value
		}
	}
	out := make([]*openapi3.Parameter, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

func (c *Converter) endpoint(path, method string, op *openapi3.Operation, pathParams openapi3.Parameters) *model.EndpointSpec {
	ep := &model.EndpointSpec{
		Method:       method,
		PathTemplate: path,
		OperationID:  op.OperationID,
		Summary:      op.Summary,
		Tags:         op.Tags,
	}

	for _, param := range mergeParameters(pathParams, op.Parameters) {
		ep.Parameters = append(ep.Parameters, model.Parameter{
			Name:     param.Name,
			In:       param.In,
			Required: param.Required,
			Example:  getParamExample(param),
		})
	}

	if ct := requestContentType(op); ct != "" {
		ep.DefaultHeaders = map[string]string{"Content-Type": ct}
	}
	return ep
}

func (c *Converter) testCase(ep *model.EndpointSpec, op *openapi3.Operation, baseURL string) model.TestCase {
	name := op.Summary
	if name == "" {
		name = op.OperationID
	}
	if name == "" {
		name = sanitizeName(strings.ToLower(ep.Method) + toTitle(ep.PathTemplate))
	}

	folder := "default"
	if len(op.Tags) > 0 {
		folder = op.Tags[0]
	} else if seg := firstSegment(ep.PathTemplate); seg != "" {
		folder = seg
	}

	id := CaseID(ep.Method, ep.PathTemplate, 0)
	tc := model.TestCase{
		ID:             id,
		Name:           name,
		Folder:         folder,
		Endpoint:       ep,
		Method:         ep.Method,
		BaseURL:        baseURL,
		Path:           ep.PathTemplate,
		PathParams:     map[string]string{},
		QueryParams:    map[string]string{},
		Headers:        map[string]string{},
		ExpectedStatus: expectedStatus(op),
		Origin:         model.Origin{Label: id},
	}

	for k, v := range ep.DefaultHeaders {
		tc.Headers[k] = v
	}

	for _, p := range ep.Parameters {
		if p.Example == "" {
			continue
		}
		switch p.In {
		case "path":
			tc.PathParams[p.Name] = p.Example
		case "query":
			if p.Required {
				tc.QueryParams[p.Name] = p.Example
			}
		case "header":
			tc.Headers[p.Name] = p.Example
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		tc.Body = generateRequestBody(op.RequestBody.Value)
	}
	return tc
}

func firstSegment(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && !strings.HasPrefix(seg, "{") {
			return seg
		}
	}
	return ""
}

// expectedStatus picks the lowest declared 2xx response, defaulting to 200
func expectedStatus(op *openapi3.Operation) int {
	if op.Responses == nil {
		return 200
	}
	best := 0
	for code := range op.Responses.Map() {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			continue
		}
		if best == 0 || n < best {
			best = n
		}
	}
	if best == 0 {
		return 200
	}
	return best
}

func requestContentType(op *openapi3.Operation) string {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return ""
	}
	types := make([]string, 0, len(op.RequestBody.Value.Content))
	for ct := range op.RequestBody.Value.Content {
		types = append(types, ct)
	}
	sort.Strings(types)
	for _, ct := range types {
		if strings.Contains(ct, "json") {
			return "application/json"
		}
	}
	for _, ct := range types {
		if strings.Contains(ct, "form") {
			return "application/x-www-form-urlencoded"
		}
	}
	return ""
}

func getParamExample(param *openapi3.Parameter) string {
	if param.Example != nil {
		return fmt.Sprintf("%v", param.Example)
	}

	if param.Schema == nil || param.Schema.Value == nil {
		return ""
	}
	schema := param.Schema.Value
	if schema.Example != nil {
		return fmt.Sprintf("%v", schema.Example)
	}
	if len(schema.Enum) > 0 {
		return fmt.Sprintf("%v", schema.Enum[0])
	}
	if schema.Default != nil {
		return fmt.Sprintf("%v", schema.Default)
	}

	types := schema.Type.Slice()
	if len(types) == 0 {
		return ""
	}
	switch types[0] {
	case "integer":
		return "1"
	case "number":
		return "1.0"
	case "boolean":
		return "true"
	case "string":
		switch schema.Format {
		case "date":
			return "2024-01-01"
		case "date-time":
			return "2024-01-01T00:00:00Z"
		case "email":
			return "user@example.com"
		case "uuid":
			return "00000000-0000-0000-0000-000000000001"
		}
		return "example"
	}
	return ""
}

func generateRequestBody(reqBody *openapi3.RequestBody) string {
	types := make([]string, 0, len(reqBody.Content))
	for ct := range reqBody.Content {
		types = append(types, ct)
	}
	sort.Strings(types)

	// Prefer JSON
	for _, ct := range types {
		if mt := reqBody.Content[ct]; mt != nil && strings.Contains(ct, "json") && mt.Schema != nil {
			return generateJSONFromSchema(mt.Schema.Value, 0)
		}
	}

	for _, ct := range types {
		if mt := reqBody.Content[ct]; mt != nil && strings.Contains(ct, "form") && mt.Schema != nil {
			return generateFormFromSchema(mt.Schema.Value)
		}
	}

	return ""
}

func generateJSONFromSchema(schema *openapi3.Schema, depth int) string {
	if schema == nil || depth > 5 {
		return "{}"
	}

	if len(schema.Type.Slice()) == 0 {
		return "{}"
	}

	switch schema.Type.Slice()[0] {
	case "object":
		var sb strings.Builder
		sb.WriteString("{\n")

		props := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			props = append(props, name)
		}
		sort.Strings(props)

		for i, name := range props {
			propSchema := schema.Properties[name]
			indent := strings.Repeat("  ", depth+1)
			sb.WriteString(indent)
			sb.WriteString(strconv.Quote(name))
			sb.WriteString(": ")

			if propSchema != nil && propSchema.Value != nil {
				sb.WriteString(generateJSONValue(propSchema.Value, depth+1))
			} else {
				sb.WriteString("null")
			}

			if i < len(props)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}

		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString("}")
		return sb.String()

	case "array":
		if schema.Items != nil && schema.Items.Value != nil {
			return "[" + generateJSONValue(schema.Items.Value, depth+1) + "]"
		}
		return "[]"

	default:
		return generateJSONValue(schema, depth)
	}
}

func generateJSONValue(schema *openapi3.Schema, depth int) string {
	if schema == nil {
		return "null"
	}

	if schema.Example != nil {
		data, err := json.Marshal(schema.Example)
		if err == nil {
			return string(data)
		}
	}

	if len(schema.Type.Slice()) == 0 {
		return "null"
	}

	switch schema.Type.Slice()[0] {
	case "string":
		switch schema.Format {
		case "date":
			return `"2024-01-01"`
		case "date-time":
			return `"2024-01-01T00:00:00Z"`
		case "email":
			return `"user@example.com"`
		case "uuid":
			return `"00000000-0000-0000-0000-000000000001"`
		}
		if len(schema.Enum) > 0 {
			return strconv.Quote(fmt.Sprintf("%v", schema.Enum[0]))
		}
		return `"example"`
	case "integer":
		if schema.Min != nil {
			return fmt.Sprintf("%.0f", *schema.Min)
		}
		return "1"
	case "number":
		if schema.Min != nil {
			return fmt.Sprintf("%v", *schema.Min)
		}
		return "1.0"
	case "boolean":
		return "true"
	case "array":
		if schema.Items != nil && schema.Items.Value != nil {
			return "[" + generateJSONValue(schema.Items.Value, depth+1) + "]"
		}
		return "[]"
	case "object":
		return generateJSONFromSchema(schema, depth)
	default:
		return "null"
	}
}

func generateFormFromSchema(schema *openapi3.Schema) string {
	if schema == nil || len(schema.Properties) == 0 {
		return ""
	}

	var parts []string
	for name, propSchema := range schema.Properties {
		value := "example"
		if propSchema != nil && propSchema.Value != nil && propSchema.Value.Example != nil {
			value = fmt.Sprintf("%v", propSchema.Value.Example)
		}
		parts = append(parts, name+"="+value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func sanitizeName(name string) string {
	result := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)

	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	return strings.Trim(result, "_")
}

// toTitle converts a path to title case, dropping separators
func toTitle(s string) string {
	var result strings.Builder
	capitalizeNext := true
	for _, r := range s {
		if r == '/' || r == '-' || r == '_' || r == ' ' || r == '{' || r == '}' {
			capitalizeNext = true
			continue
		}
		if capitalizeNext && r >= 'a' && r <= 'z' {
			result.WriteRune(r - 32)
		} else {
			result.WriteRune(r)
		}
		capitalizeNext = false
	}
	return result.String()
}
