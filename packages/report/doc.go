// Package report projects a reconciled run onto its output artifacts.
//
// For spreadsheet input the source workbook is copied to
// <name>_results<ext> with ActualStatus and Status columns written next to
// the expected status of every row. For API specification input a fresh
// results workbook is written. Both carry a summary sheet with totals,
// execution time and latency percentiles.
package report
