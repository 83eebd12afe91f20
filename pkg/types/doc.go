// Package types contains the shared data model for the scaled control plane.
package types
