// Package collector holds the shared domain types for the data-acquisition
// engine: dataset handles and their status machine, source configurations,
// fetch results, and the collaborator interfaces the engine consumes.
package collector
