package client

import (
	"database/sql/driver"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Config mirrors the `db` section of config.yaml.
type Config struct {
	Driver          string
	Username        string
	Password        string
	Host            string
	Port            uint32
	Name            string
	DSN             string
	TracingEnabled  bool
	MaxOpenConns    uint32
	MaxIdleConns    uint32
	ConnMaxIdleTime uint32
	ConnMaxLifeTime uint32
}

func ReadConfig() *Config {
	// Enable environment variable usage
	viper.BindEnv("db.driver", "DB_DRIVER")
	viper.BindEnv("db.user", "DB_USER")
	viper.BindEnv("db.password", "DB_PASSWORD")
	viper.BindEnv("db.host", "DB_HOST")
	viper.BindEnv("db.port", "DB_PORT")
	viper.BindEnv("db.name", "DB_NAME")
	viper.BindEnv("db.dsn", "DB_DSN")
	viper.BindEnv("db.tracing_enabled", "DB_TRACING_ENABLED")

	driverName := viper.GetString("db.driver")
	if driverName == "" {
		driverName = DriverMySQL
	}

	return &Config{
		Driver:          driverName,
		Username:        viper.GetString("db.user"),
		Password:        viper.GetString("db.password"),
		Host:            viper.GetString("db.host"),
		Port:            viper.GetUint32("db.port"),
		Name:            viper.GetString("db.name"),
		DSN:             viper.GetString("db.dsn"),
		TracingEnabled:  viper.GetBool("db.tracing_enabled"),
		MaxOpenConns:    viper.GetUint32("db.max_open_conns"),
		MaxIdleConns:    viper.GetUint32("db.max_idle_conns"),
		ConnMaxIdleTime: viper.GetUint32("db.conn_max_idle_time"),
		ConnMaxLifeTime: viper.GetUint32("db.conn_max_life_time"),
	}
}

// NewDriver wraps the MySQL driver so the DSN is always rebuilt from config.
func NewDriver(config *Config) driver.Driver {
	return &Driver{config: config}
}

type Driver struct {
	drv    mysql.MySQLDriver
	config *Config
}

func (d *Driver) Open(_ string) (driver.Conn, error) {
	return d.drv.Open(formatDSN(d.config))
}

func formatDSN(config *Config) string {
	mysqlConfig := mysql.NewConfig()
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	mysqlConfig.DBName = config.Name
	mysqlConfig.User = config.Username
	mysqlConfig.Passwd = config.Password
	mysqlConfig.AllowNativePasswords = true
	mysqlConfig.ParseTime = true
	mysqlConfig.ClientFoundRows = true
	mysqlConfig.Params = map[string]string{"charset": "utf8mb4"}
	return mysqlConfig.FormatDSN()
}
