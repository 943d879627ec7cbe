// Package logging provides a process-wide structured logger for storecore.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. The buffer pool,
// lock manager and table files obtain their loggers through this package so
// that log level and output destination are controlled from a single place.
//
// # Initialisation
//
// Call Init (or InitDefault for sensible defaults) once at program startup:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug, Format: "json"}); err != nil {
//	    log.Fatal(err)
//	}
//
// If GetLogger is called before Init, a default logger is created lazily.
//
// # Context helpers
//
//	log := logging.WithTx(tid.ID())          // adds tx_id
//	log := logging.WithPage(pid.String())    // adds page
//	log := logging.WithComponent("lock")     // adds component
package logging
