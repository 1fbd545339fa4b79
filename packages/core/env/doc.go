// Package env expands ${VAR} references in configuration files.
//
// Values come from an optional .env file next to the config and from the
// process environment, which wins. ${VAR:-default} supplies a fallback for
// unset variables.
package env
