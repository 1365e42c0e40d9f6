package conn

import (
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver selects the database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
	defaultSQLitePath      = "quantbrains.db"
	sqliteMemory           = ":memory:"
)

// Option defines connection options. Host through SSLMode apply to
// postgres; Path applies to sqlite.
type Option struct {
	Driver     Driver
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Path       string
	Config     *gorm.Config
}

// Client wraps a gorm connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens a database client from the provided options.
func New(option Option) (*Client, error) {
	dialector, err := option.dialector()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, err
	}

	if option.driver() == DriverSQLite {
		// sqlite allows one writer; an in-memory database lives per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Client{opt: option, db: db}, nil
}

// Driver returns the configured backend.
func (c *Client) Driver() Driver {
	if c == nil {
		return ""
	}
	return c.opt.driver()
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) driver() Driver {
	if opt.Driver == "" {
		return DriverPostgres
	}
	return Driver(strings.ToLower(string(opt.Driver)))
}

func (opt Option) dialector() (gorm.Dialector, error) {
	switch opt.driver() {
	case DriverPostgres:
		dsn, err := opt.dsn()
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case DriverSQLite:
		path := opt.Path
		if path == "" {
			path = opt.ConnString
		}
		if path == "" {
			path = defaultSQLitePath
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", opt.Driver)
	}
}

// SQLiteMemory returns options for a private in-memory sqlite database.
func SQLiteMemory() Option {
	return Option{Driver: DriverSQLite, Path: sqliteMemory}
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	if len(query) != 0 {
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}
