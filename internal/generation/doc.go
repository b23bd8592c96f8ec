// Package generation defines the contract the job engine uses to call the
// external canvas generation backend, and the failure codes it reports.
package generation
