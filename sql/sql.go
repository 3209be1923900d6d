package sql

import (
	"context"
	"fmt"
	"strings"

	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/Skyrin/go-deploy/e"
	"github.com/caarlos0/env/v11"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	ECode010101 = e.Code0101 + "01"
	ECode010102 = e.Code0101 + "02"
	ECode010103 = e.Code0101 + "03"
	ECode010104 = e.Code0101 + "04"
	ECode010105 = e.Code0101 + "05"
	ECode010106 = e.Code0101 + "06"
	ECode010107 = e.Code0101 + "07"
	ECode010108 = e.Code0101 + "08"
	ECode010109 = e.Code0101 + "09"
	ECode01010A = e.Code0101 + "0A"
	ECode01010B = e.Code0101 + "0B"
	ECode01010C = e.Code0101 + "0C"
	ECode01010D = e.Code0101 + "0D"
	ECode01010E = e.Code0101 + "0E"
	ECode01010F = e.Code0101 + "0F"
	ECode01010G = e.Code0101 + "0G"
)

// Connection wrapper of the *sql.DB
// If a transaction is started, it is stored internally in the txn and automatically
// used when making DB calls until commit/rollback is executed. If during a txn, a
// call outside of the txn is needed, the DB property can be accessed directly and
// used to make a query/exec/select call.
type Connection struct {
	DB  *sql.DB
	txn *sql.Tx
}

// ConnParam connection parameters used to initialize a connection. The env
// tags match the parameter names stored in the parameter store.
type ConnParam struct {
	Host       string `env:"DBHOST"`
	Port       string `env:"DBPORT" envDefault:"5432"`
	User       string `env:"DBUSER"`
	Password   string `env:"DBPASS"`
	DBName     string `env:"DBNAME"`
	SSLMode    string `env:"SSLMODE"`
	SearchPath string `env:"DBSEARCHPATH"`
}

// GetConnParamFromEnv populates connection parameters from the passed
// environment map. If environment is nil, the process environment is used.
func GetConnParamFromEnv(environment map[string]string) (cp *ConnParam, err error) {
	cp = &ConnParam{}

	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}

	if err := env.ParseWithOptions(cp, opts); err != nil {
		return nil, e.WWM(err, ECode010101, e.MsgConfigInvalid)
	}

	if cp.Host == "" || cp.User == "" || cp.DBName == "" {
		return nil, e.WWM(nil, ECode010102, e.MsgConfigInvalid,
			"DBHOST, DBUSER and DBNAME are required")
	}

	return cp, nil
}

// GetConnectionStr returns a connection string. Every value is quoted, so
// passwords with spaces, quotes or backslashes survive.
func GetConnectionStr(cp *ConnParam) (connStr string) {
	var csb strings.Builder

	sslMode := cp.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	writeConnValue(&csb, "host", cp.Host)
	writeConnValue(&csb, "port", cp.Port)
	writeConnValue(&csb, "user", cp.User)
	writeConnValue(&csb, "password", cp.Password)
	writeConnValue(&csb, "dbname", cp.DBName)
	writeConnValue(&csb, "sslmode", sslMode)

	if cp.SearchPath != "" {
		writeConnValue(&csb, "search_path", cp.SearchPath)
	}

	// History timestamps are compared against now() read by this session
	writeConnValue(&csb, "timezone", "UTC")

	return csb.String()
}

// writeConnValue appends key='value', escaping \ and ' in the value
func writeConnValue(csb *strings.Builder, key, value string) {
	if csb.Len() > 0 {
		_ = csb.WriteByte(' ')
	}
	_, _ = csb.WriteString(key)
	_, _ = csb.WriteString("='")
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' || value[i] == '\'' {
			_ = csb.WriteByte('\\')
		}
		_ = csb.WriteByte(value[i])
	}
	_ = csb.WriteByte('\'')
}

// NewPostgresConn initializes a new Postgres connection. The pool is limited
// to a single connection, so every statement of a run (including now() reads)
// sees the same session.
func NewPostgresConn(ctx context.Context, cp *ConnParam) (conn *Connection, err error) {
	sqlConn, err := sql.Open("postgres", GetConnectionStr(cp))
	if err != nil {
		return nil, e.WWM(err, ECode010103, "Failed to connect to DB")
	}
	sqlConn.SetMaxOpenConns(1)

	if err := sqlConn.PingContext(ctx); err != nil {
		_ = sqlConn.Close()
		return nil, e.WWM(err, ECode010104, "Failed to ping DB",
			fmt.Sprintf("host: %s, dbname: %s", cp.Host, cp.DBName))
	}

	return NewConn(sqlConn), nil
}

// NewConn wraps an already opened *sql.DB
func NewConn(db *sql.DB) (conn *Connection) {
	return &Connection{DB: db}
}

// Close closes the underlying DB, rolling back any open txn first
func (c *Connection) Close() (err error) {
	c.RollbackIfInTxn()

	if err := c.DB.Close(); err != nil {
		return e.W(err, ECode010105)
	}

	return nil
}

// InTxn returns whether a txn is currently open
func (c *Connection) InTxn() bool {
	return c.txn != nil
}

// Begin wrapper for sql.BeginTx. It doesn't return the txn object, but stores
// it internally and it will be used automatically for subsequent query/exec/select
// calls until commit/rollback is called
func (c *Connection) Begin(ctx context.Context) (err error) {
	if c.txn != nil {
		return e.N(ECode010106, "already in a txn")
	}
	c.txn, err = c.DB.BeginTx(ctx, nil)
	if err != nil {
		return e.W(err, ECode010107)
	}

	return nil
}

// Commit wrapper for sql.Commit. If successfull, will unset the txn object
func (c *Connection) Commit() (err error) {
	if c.txn == nil {
		return e.N(ECode010108, "not in a txn")
	}

	if err = c.txn.Commit(); err != nil {
		c.txn = nil
		return e.W(err, ECode010109)
	}

	c.txn = nil

	return nil
}

// RollbackIfInTxn same as Rollback, except if it is not in a txn, it will not
// log a warning
func (c *Connection) RollbackIfInTxn() {
	if c.txn == nil {
		return
	}

	c.Rollback()
}

// Rollback wrapper for sql.Rollback - no matter what the transaction will
// be cancelled. So, we will log errors here, but will always assume the
// txn is rolled back and now unavailable
func (c *Connection) Rollback() {
	if c.txn == nil {
		log.Warn().Msgf("[%s] not in txn", ECode01010A)
		return
	}

	if err := c.txn.Rollback(); err != nil {
		log.Error().Err(err).Msgf("[%s]", ECode01010B)
	}

	c.txn = nil
}

// Query wrapper for sql.QueryContext with automatic txn handling
func (c *Connection) Query(ctx context.Context, query string, args ...interface{}) (rows *Rows, err error) {
	var sqlRows *sql.Rows
	if c.txn != nil {
		sqlRows, err = c.txn.QueryContext(ctx, query, args...)
	} else {
		sqlRows, err = c.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode01010C, queryDebug(query))
	}

	return &Rows{
		rows:  sqlRows,
		query: query,
	}, nil
}

// Exec wrapper for sql.ExecContext with automatic txn handling
func (c *Connection) Exec(ctx context.Context, query string, args ...interface{}) (res sql.Result, err error) {
	if c.txn != nil {
		res, err = c.txn.ExecContext(ctx, query, args...)
	} else {
		res, err = c.DB.ExecContext(ctx, query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode01010D, queryDebug(query))
	}

	return res, nil
}

// QueryRow wrapper for sql.QueryRowContext with automatic txn handling
func (c *Connection) QueryRow(ctx context.Context, query string, args ...interface{}) (row *Row) {
	if c.txn != nil {
		return &Row{
			row:   c.txn.QueryRowContext(ctx, query, args...),
			query: query,
		}
	}
	return &Row{
		row:   c.DB.QueryRowContext(ctx, query, args...),
		query: query,
	}
}

// Select wrapper for github.com/Masterminds/squirrel.Select
func (c *Connection) Select(columns ...string) sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select(columns...)
}

// Insert wrapper for github.com/Masterminds/squirrel.Insert
func (c *Connection) Insert(table string) sq.InsertBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Insert(table)
}

// ToSQLAndQuery converts the select build to a SQL statement and bind parameters,
// then attempts to execute the query, returning the rows
func (c *Connection) ToSQLAndQuery(ctx context.Context, sb sq.SelectBuilder) (rows *Rows, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode01010E, fmt.Sprintf("stmt: %s", stmt))
	}

	return c.Query(ctx, stmt, bindList...)
}

// ToSQLAndQueryRow converts the select builder to a SQL statement and bind parameters,
// then attempts to execute the query, returning a single row
func (c *Connection) ToSQLAndQueryRow(ctx context.Context, sb sq.SelectBuilder) (row *Row, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode01010F, fmt.Sprintf("stmt: %s", stmt))
	}

	return c.QueryRow(ctx, stmt, bindList...), nil
}

// ExecInsert wrapper to generate SQL/bind list and then execute insert query
func (c *Connection) ExecInsert(ctx context.Context, ib sq.InsertBuilder) (err error) {
	stmt, bindList, err := ib.ToSql()
	if err != nil {
		return e.W(err, ECode01010G, fmt.Sprintf("stmt: %s", stmt))
	}

	if _, err := c.Exec(ctx, stmt, bindList...); err != nil {
		return err
	}

	return nil
}

// QualifiedName returns the quoted schema qualified name of a table. If
// schema is empty, only the table name is quoted.
func QualifiedName(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// truncate shortens long statements (migration scripts) before they end up
// in an error message
func truncate(query string) string {
	const max = 256
	if len(query) <= max {
		return query
	}
	return query[:max] + "..."
}
