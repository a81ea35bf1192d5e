// Package catalog defines the core types and interfaces for the restaurant
// aggregation engine: the canonical data model, the adapter capability set,
// and the persistence contracts shared across subsystems.
package catalog
