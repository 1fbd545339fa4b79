// Package model defines the records that flow through an apiregress run.
//
// The pipeline stages only communicate through these types:
//   - EndpointSpec and TestCase are produced by the normalizer
//   - ExecutionRecord is produced by the execution adapter
//   - ReconciledResult and RunResult are produced by the reconciler
//
// Values are treated as immutable once constructed. Stages never modify a
// record they received from an earlier stage.
package model
