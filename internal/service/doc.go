// Package service contains the application-specific use cases of the job
// engine. JobService is the surface the HTTP API calls: it checks that the
// caller owns the job, applies client-requested transitions (submit, cancel,
// retry) through the job store's compare-and-swap and publishes a
// notification after each status change.
//
// The service layer depends on domain entities and the store interfaces,
// never on a specific storage implementation.
package service
