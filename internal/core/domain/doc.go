// Package domain contains the core business types for Recall.
// These types have no dependencies on infrastructure or external services.
package domain
