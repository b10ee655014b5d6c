// Package observability provides structured logging and Prometheus metrics
// for the alumni API.
//
// Metrics are package-level collectors registered once through Register.
// The Record helpers are safe to call before registration and become no-ops
// in that case, so services can be unit tested without a registry.
package observability
