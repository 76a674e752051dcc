// Package logger provides structured logging on top of zerolog.
//
// Loggers are values passed down explicitly: the application builds one from
// its config, then derives component loggers with WithComponent and attaches
// per-call data as field maps.
//
//	log := logger.Init(cfg.Logging, cfg.Name).WithComponent("discovery")
//	log.Warn("agent probe failed", logger.Fields(logger.FieldAgent, addr))
package logger
