package conn

import (
	"cmp"
	"net"
	"net/url"
	"strconv"

	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Option locates the database behind the record sink. An empty Driver means
// postgres. For sqlite, Database is a file path or ":memory:".
// ConnString, when set, is passed to the driver as is.
type Option struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// Client owns a gorm connection pool.
type Client struct {
	db *gorm.DB
}

func New(opt Option) (*Client, error) {
	dsn, err := opt.dsn()
	if err != nil {
		return nil, err
	}

	open := postgres.Open
	if opt.Driver == DriverSQLite {
		open = sqlite.Open
	}
	db, err := gorm.Open(open(dsn), cmp.Or(opt.Config, &gorm.Config{}))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", cmp.Or(opt.Driver, DriverPostgres))
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	pool, err := c.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql pool")
	}
	return pool.Close()
}

func (opt Option) dsn() (string, error) {
	switch opt.Driver {
	case "", DriverPostgres:
		if opt.ConnString != "" {
			return opt.ConnString, nil
		}
		return opt.postgresURL().String(), nil
	case DriverSQLite:
		if path := cmp.Or(opt.ConnString, opt.Database); path != "" {
			return path, nil
		}
		return "", errors.Wrap(exception.ErrInvalidConfig, "sqlite database path is empty")
	}
	return "", errors.Wrapf(exception.ErrUnknownDriver, "driver: %s", opt.Driver)
}

func (opt Option) postgresURL() *url.URL {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cmp.Or(opt.Host, "localhost"), strconv.Itoa(cmp.Or(opt.Port, 5432))),
	}
	switch {
	case opt.User != "" && opt.Password != "":
		u.User = url.UserPassword(opt.User, opt.Password)
	case opt.User != "":
		u.User = url.User(opt.User)
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	q := url.Values{"sslmode": {cmp.Or(opt.SSLMode, "disable")}}
	for k, v := range opt.Params {
		if k != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u
}
