package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DriverInfo describes a registered storage driver.
type DriverInfo struct {
	Name        string // "postgres", "sqlserver"
	DisplayName string // "PostgreSQL", "Microsoft SQL Server"
}

// DriverRegistration pairs driver info with its open function.
type DriverRegistration struct {
	Info DriverInfo
	Open func(ctx context.Context, dsn string) (Executor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DriverRegistration)
)

// Register is called by each driver package's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DriverRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Name] = reg
}

// RegisteredDrivers returns info for all registered drivers, sorted by name.
func RegisteredDrivers() []DriverInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DriverInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// IsRegistered checks if a driver is available.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Open opens an executor through a registered driver.
func Open(ctx context.Context, name, dsn string) (Executor, error) {
	registryMu.RLock()
	reg, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("storage: unknown driver %q", name)
	}
	return reg.Open(ctx, dsn)
}
