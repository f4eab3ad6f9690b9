// Package mssql registers the SQL Server storage driver. It opens a
// database/sql handle through go-mssqldb and wraps it in the generic
// stdsql executor with SQL Server dialect rendering.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"go.uber.org/zap"

	"github.com/tabular-io/tabular-engine/pkg/logging"
	"github.com/tabular-io/tabular-engine/pkg/storage"
	"github.com/tabular-io/tabular-engine/pkg/storage/sqlgen"
	"github.com/tabular-io/tabular-engine/pkg/storage/stdsql"
)

func init() {
	storage.Register(storage.DriverRegistration{
		Info: storage.DriverInfo{Name: "sqlserver", DisplayName: "Microsoft SQL Server"},
		Open: func(ctx context.Context, dsn string) (storage.Executor, error) {
			return Open(ctx, dsn, zap.NewNop())
		},
	})
}

// Open connects to SQL Server and verifies connectivity.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (storage.Executor, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlserver: %w", err)
	}

	logger.Info("connected to sql server", zap.String("dsn", logging.SanitizeDSN(dsn)))
	return stdsql.New(db, sqlgen.SQLServer, logger), nil
}
