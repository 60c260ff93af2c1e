// Package core provides the module lifecycle shared by the daybook daemon.
// Modules are constructed explicitly by the wiring code and appended to an
// App in start order; there is no global registry.
package core

// ModuleID identifies a module in logs and lookups, e.g. "cron.scheduler".
type ModuleID string

// ModuleInfo describes a module.
type ModuleInfo struct {
	ID ModuleID
}

// Module is the minimal interface every lifecycle participant implements.
type Module interface {
	ModuleInfo() ModuleInfo
}
