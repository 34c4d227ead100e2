// Package fx wires the audit persistence layer (mutable GORM repositories,
// append-only sqlx repositories, archiver) into the application's fx.App.
package fx

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/audit"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
)

type Params struct {
	fx.In

	Logger *zap.Logger
	Config *config.Config
}

func dbConfig(c *config.Config) audit.DBConfig {
	return audit.DBConfig{
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Name:            c.Database.Name,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

func NewGormDB(p Params) (*gorm.DB, error) {
	return audit.Connect(dbConfig(p.Config), p.Logger)
}

func NewSqlxDB(p Params, lc fx.Lifecycle) (*sqlx.DB, error) {
	cfg := dbConfig(p.Config)
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := audit.EnsureSchema(context.Background(), db); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func NewMutableRepository(db *gorm.DB, logger *zap.Logger) *audit.MutableRepository {
	return audit.NewMutableRepository(db, logger)
}

func NewAppendOnlyRepository(db *sqlx.DB) *audit.AppendOnlyRepository {
	return audit.NewAppendOnlyRepository(db)
}

func NewArchiver(db *sqlx.DB, logger *zap.Logger) *audit.Archiver {
	return audit.NewArchiver(db, logger)
}

var Module = fx.Options(
	fx.Provide(NewGormDB, NewSqlxDB, NewMutableRepository, NewAppendOnlyRepository, NewArchiver),
)
