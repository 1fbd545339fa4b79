// Package newman runs a Postman collection through the newman CLI as a
// subprocess and parses its JSON execution report.
//
// The runner's exit code is only a diagnostic. Per-request outcomes always
// come from the parsed report, since newman exits non-zero whenever any
// assertion fails.
package newman
