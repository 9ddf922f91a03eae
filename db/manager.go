package db

import (
	"context"
	"fmt"

	"socialgraph/config"
	"socialgraph/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
		// unique violations come back as gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         newGormLogger(gormlogger.Warn),
	}
}

// ConnectDB opens the store described by conf and assigns ORM
func ConnectDB(conf *config.ConfigSchema) (err error) {
	if ORM != nil {
		logger.Get().Debug("ORM is already initialized")
		return nil
	}
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}

	var database *gorm.DB
	switch conf.Databases.Driver {
	case config.DriverSQLite:
		database, err = OpenSQLite(conf.Databases.SQLitePath)
	default:
		database, err = openPostgres(conf)
	}
	if err != nil {
		return err
	}

	ORM = database
	return nil
}

func openPostgres(conf *config.ConfigSchema) (*gorm.DB, error) {
	if conf.Databases.Master.Host == "" {
		return nil, fmt.Errorf("master database configuration is missing")
	}

	masterDSN := dsnFromConfig(conf.Databases.Master)
	replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
	for _, r := range conf.Databases.Replicas {
		replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
	}

	database, err := gorm.Open(postgres.Open(masterDSN), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if len(replicaDSNs) > 0 {
		err = database.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicaDSNs,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to register replicas: %w", err)
		}
		logger.Get().Info("read replicas registered", zap.Int("replicas", len(replicaDSNs)))
	}
	return database, nil
}

// OpenSQLite opens a sqlite database. SQLite has a single writer, so the
// pool is pinned to one connection; transactions then serialize.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err = database.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return database, nil
}

// CloseDB releases the pool and clears ORM
func CloseDB() error {
	if ORM == nil {
		return nil
	}
	sqlDB, err := ORM.DB()
	if err != nil {
		return err
	}
	ORM = nil
	return sqlDB.Close()
}

// GetReadOnlyDB returns a handle routed to the replicas
func GetReadOnlyDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Read)
}

// GetWriteDB returns a handle routed to the master
func GetWriteDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Write)
}
