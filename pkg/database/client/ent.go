package client

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	_ "github.com/mattn/go-sqlite3"
	sqltrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/database/sql"
)

var registered sync.Map

// Open initializes a new Ent SQL driver from config.
func Open(name string, cfg *Config) (*entsql.Driver, error) {
	var (
		db          *sql.DB
		err         error
		dialectName string
	)

	switch cfg.Driver {
	case DriverSQLite:
		dialectName = dialect.SQLite
		db, err = sql.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, err
		}
	case DriverMySQL, "":
		dialectName = dialect.MySQL
		driver := NewDriver(cfg)
		if _, loaded := registered.LoadOrStore(name, struct{}{}); !loaded {
			sql.Register(name, driver)
			if cfg.TracingEnabled {
				sqltrace.Register(name, driver, sqltrace.WithServiceName(os.Getenv("DD_SERVICE")))
			}
		}
		if cfg.TracingEnabled {
			db, err = sqltrace.Open(name, "", sqltrace.WithServiceName(os.Getenv("DD_SERVICE")))
		} else {
			db, err = sql.Open(name, "")
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	drv := entsql.OpenDB(dialectName, db)
	if cfg.MaxIdleConns > 0 {
		drv.DB().SetMaxIdleConns(int(cfg.MaxIdleConns))
	}
	if cfg.MaxOpenConns > 0 {
		drv.DB().SetMaxOpenConns(int(cfg.MaxOpenConns))
	}
	if cfg.ConnMaxIdleTime > 0 {
		drv.DB().SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}
	if cfg.ConnMaxLifeTime > 0 {
		drv.DB().SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeTime) * time.Minute)
	}
	return drv, nil
}
