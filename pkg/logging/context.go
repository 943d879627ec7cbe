package logging

import (
	"log/slog"
)

// WithTx creates a logger with transaction context.
//
// Example:
//
//	log := logging.WithTx(tid.ID())
//	log.Debug("page fetched", "page", pid)
func WithTx(txID int64) *slog.Logger {
	return GetLogger().With("tx_id", txID)
}

// WithPage creates a logger with page context.
// Useful for buffer pool and storage operations.
func WithPage(pageID string) *slog.Logger {
	return GetLogger().With("page", pageID)
}

// WithLock creates a logger with lock context.
//
// Example:
//
//	log := logging.WithLock(tid.ID(), pid.String())
//	log.Debug("lock acquired", "lock_type", "exclusive")
func WithLock(txID int64, resource string) *slog.Logger {
	return GetLogger().With("tx_id", txID, "resource", resource)
}

// WithComponent creates a logger with component/subsystem context.
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
