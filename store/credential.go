package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	queryPassword = "SELECT password FROM user WHERE username = ? LIMIT 1"
	insertUser    = "INSERT INTO user(username, password) VALUES(?, ?)"

	errDuplicateEntry = 1062
)

// MySQLOptions describes the credential database.
type MySQLOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN renders the options in go-sql-driver/mysql format.
func (o MySQLOptions) DSN() string {
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(o.Port))
	cfg.DBName = o.Database
	cfg.Timeout = 5 * time.Second
	return cfg.FormatDSN()
}

// OpenMySQL opens the database handle; connections are made by NewPool.
func OpenMySQL(o MySQLOptions) (*sql.DB, error) {
	db, err := sql.Open("mysql", o.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return db, nil
}

// CredentialStore checks and registers users against the user table.
type CredentialStore struct {
	pool *Pool
}

// NewCredentialStore creates a store backed by pool.
func NewCredentialStore(pool *Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Verify reports whether name/password is accepted. For a login the user
// must exist with an equal password. For a registration the name must be
// unused, in which case the user is inserted. Errors wrap ErrUnavailable
// and are distinct from a rejected credential.
func (s *CredentialStore) Verify(ctx context.Context, name, password string, isLogin bool) (bool, error) {
	if name == "" || password == "" {
		return false, nil
	}

	var ok bool
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		var stored string
		err := conn.QueryRowContext(ctx, queryPassword, name).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if isLogin {
				return nil
			}
		case err != nil:
			return err
		default:
			// A found row settles both cases.
			ok = isLogin && stored == password
			return nil
		}

		if _, err := conn.ExecContext(ctx, insertUser, name, password); err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
				// Lost a race with a concurrent registration.
				return nil
			}
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: verify %q: %w", ErrUnavailable, name, err)
	}
	return ok, nil
}
