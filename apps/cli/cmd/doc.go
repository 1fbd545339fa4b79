// Package cmd implements the apiregress CLI commands using Cobra.
//
// Available commands:
//   - run: Normalize, build, execute and report in one pass
//   - generate: Write the Postman collection without executing it
//   - validate: Check the config and report how the input normalizes
//   - list: Show the normalized test cases
//   - history: Show recorded runs from the history database
//   - diff: Compare two JSON result files
//   - init: Create a starter config and test-case workbook
//   - version: Show apiregress version information
//
// Source and output flags are shared by every command and fall back to
// APIREGRESS_* environment variables.
package cmd
