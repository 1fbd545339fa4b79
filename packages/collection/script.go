package collection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
)

// StatusTestName returns the name of the status assertion for a code
func StatusTestName(code int) string {
	return fmt.Sprintf("Status code is %d", code)
}

// jsLiteral encodes v as a JavaScript literal. JSON is a subset of JS.
func jsLiteral(v any) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

type operator struct {
	label  string // test name fragment, %s is the expected literal
	expect string // chai chain, %s is the expected literal
}

var operators = map[string]operator{
	"equals":             {"equals %s", "to.eql(%s)"},
	"notequals":          {"not equals %s", "to.not.eql(%s)"},
	"notempty":           {"is not empty", "to.not.be.empty"},
	"greaterthanorequal": {">= %s", "to.be.at.least(%s)"},
	"greaterthan":        {"> %s", "to.be.above(%s)"},
	"lessthanorequal":    {"<= %s", "to.be.at.most(%s)"},
	"lessthan":           {"< %s", "to.be.below(%s)"},
	"contains":           {"contains %s", "to.include(%s)"},
	"true":               {"is true", "to.be.true"},
	"false":              {"is false", "to.be.false"},
	"exists":             {"exists", "to.not.be.undefined"},
}

var operatorAliases = map[string]string{
	"equals": "equals", "equal": "equals", "eq": "equals", "==": "equals",
	"notequals": "notequals", "not_equals": "notequals", "!=": "notequals", "ne": "notequals",
	"notempty": "notempty", "not_empty": "notempty",
	"greaterthanorequal": "greaterthanorequal", "greater_than_or_equal": "greaterthanorequal", "gte": "greaterthanorequal", ">=": "greaterthanorequal",
	"greaterthan": "greaterthan", "greater_than": "greaterthan", "gt": "greaterthan", ">": "greaterthan",
	"lessthanorequal": "lessthanorequal", "less_than_or_equal": "lessthanorequal", "lte": "lessthanorequal", "<=": "lessthanorequal",
	"lessthan": "lessthan", "less_than": "lessthan", "lt": "lessthan", "<": "lessthan",
	"contains": "contains", "includes": "contains",
	"true": "true", "istrue": "true",
	"false": "false", "isfalse": "false",
	"exists": "exists",
}

// CanonicalOperator maps an operator spelling to its canonical name
func CanonicalOperator(op string) (string, bool) {
	canon, ok := operatorAliases[strings.ToLower(strings.TrimSpace(op))]
	return canon, ok
}

// TestScript renders the test script of a case: a status check followed by
// one pm.test per field assertion. Assertions with an unknown operator are
// returned separately and left out of the script.
func TestScript(tc *model.TestCase) ([]string, []model.FieldAssertion) {
	lines := []string{
		fmt.Sprintf("pm.test(%s, function () {", jsLiteral(StatusTestName(tc.ExpectedStatus))),
		fmt.Sprintf("    pm.response.to.have.status(%d);", tc.ExpectedStatus),
		"});",
	}
	if len(tc.Assertions) == 0 {
		return lines, nil
	}

	lines = append(lines,
		"let jsonData = null;",
		"try {",
		"    jsonData = pm.response.json();",
		"} catch (e) {",
		"    jsonData = null;",
		"}",
		"pm.test(\"Response is valid JSON\", function () {",
		"    pm.expect(jsonData, \"Response JSON\").to.not.be.null;",
		"});",
	)

	var unknown []model.FieldAssertion
	for _, a := range tc.Assertions {
		canon, ok := CanonicalOperator(a.Operator)
		if !ok {
			unknown = append(unknown, a)
			continue
		}
		op := operators[canon]
		expected := jsLiteral(a.Expected)

		label := op.label
		if strings.Contains(label, "%s") {
			label = fmt.Sprintf(label, expected)
		}
		chain := op.expect
		if strings.Contains(chain, "%s") {
			chain = fmt.Sprintf(chain, expected)
		}

		lines = append(lines,
			fmt.Sprintf("pm.test(%s, function () {", jsLiteral(a.Field+" "+label)),
			"    pm.expect(jsonData, \"Response JSON\").to.not.be.null;",
			fmt.Sprintf("    pm.expect(_.get(jsonData, %s)).%s;", jsLiteral(a.Field), chain),
			"});",
		)
	}
	return lines, unknown
}
