// Package runner drives one regression run through its stages.
//
// A run:
//   - Loads test cases from a workbook or an OpenAPI document
//   - Resolves the auth token when auth is configured
//   - Builds and writes the request collection
//   - Executes the collection through the external runner
//   - Reconciles the runner's records onto the test cases
//   - Writes the results workbook and packages attachments
//
// Every stage consumes only the previous stage's output. A failed auth call
// stops the run before anything is written and classifies every case as an
// error.
package runner
