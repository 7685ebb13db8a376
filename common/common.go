// Package common holds identifiers shared across the service binaries.
package common

// PackageName is the service namespace used for metrics and logging.
const PackageName = "shadow_protocol"
