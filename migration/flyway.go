package migration

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/sql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ECode020301 = e.Code0203 + "01"

	// FlywayDefaultBin the Flyway executable looked up in PATH
	FlywayDefaultBin = "flyway"

	// flywayInitSQL runs on every Flyway connection. installed_on has no time
	// zone, so it must be written in the same zone the journal reads T0 in.
	flywayInitSQL = "SET TIME ZONE 'UTC'"
	// flywayJavaTimeZone pins the JVM zone PgJDBC sends at connection startup
	flywayJavaTimeZone = "-Duser.timezone=UTC"
)

// FlywayParam settings for NewFlyway
type FlywayParam struct {
	Bin          string // defaults to FlywayDefaultBin
	Conn         *sql.ConnParam
	Schema       string
	HistoryTable string
	Dir          string
}

// Flyway a runner that shells out to the Flyway CLI
type Flyway struct {
	bin          string
	conn         *sql.ConnParam
	schema       string
	historyTable string
	dir          string
}

// NewFlyway initializes a new Flyway runner
func NewFlyway(p FlywayParam) (f *Flyway) {
	if p.Bin == "" {
		p.Bin = FlywayDefaultBin
	}

	return &Flyway{
		bin:          p.Bin,
		conn:         p.Conn,
		schema:       p.Schema,
		historyTable: p.HistoryTable,
		dir:          p.Dir,
	}
}

// JDBCURL returns the JDBC URL for the connection params. Credentials are
// not part of the URL.
func JDBCURL(cp *sql.ConnParam) string {
	u := url.URL{
		Scheme: "postgresql",
		Host:   cp.Host + ":" + cp.Port,
		Path:   "/" + cp.DBName,
	}
	if cp.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{cp.SSLMode}}.Encode()
	}

	return "jdbc:" + u.String()
}

// args builds the command line. The password is never part of it, see env
func (f *Flyway) args() []string {
	args := []string{
		"-url=" + JDBCURL(f.conn),
		"-user=" + f.conn.User,
		"-locations=filesystem:" + f.dir,
		"-initSql=" + flywayInitSQL,
	}

	if f.schema != "" {
		args = append(args, "-schemas="+f.schema)
	}

	if f.historyTable != "" {
		args = append(args, "-table="+f.historyTable)
	}

	return append(args, "migrate")
}

// env passes the password through the child's environment, so it does not
// show up in the process list. JAVA_ARGS gets the UTC zone appended.
func (f *Flyway) env() []string {
	javaArgs := flywayJavaTimeZone

	environ := os.Environ()
	out := make([]string, 0, len(environ)+2)
	for _, kv := range environ {
		if v, ok := strings.CutPrefix(kv, "JAVA_ARGS="); ok {
			if v != "" {
				javaArgs = v + " " + flywayJavaTimeZone
			}
			continue
		}
		if strings.HasPrefix(kv, "FLYWAY_PASSWORD=") {
			continue
		}
		out = append(out, kv)
	}

	return append(out, "JAVA_ARGS="+javaArgs, "FLYWAY_PASSWORD="+f.conn.Password)
}

// Migrate runs "flyway migrate". Flyway output is forwarded to the logger.
func (f *Flyway) Migrate(ctx context.Context) (err error) {
	cmd := exec.CommandContext(ctx, f.bin, f.args()...)
	cmd.Env = f.env()

	stdout := newLineLogger(zerolog.InfoLevel, "flyway")
	stderr := newLineLogger(zerolog.WarnLevel, "flyway")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Info().Msgf("running %s migrate, locations: %s", f.bin, f.dir)

	runErr := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if runErr != nil {
		var code string
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			code = fmt.Sprintf("exit code: %d", exitErr.ExitCode())
		}
		return e.WWM(runErr, ECode020301, e.MsgMigrationRunnerFailed, f.bin, code)
	}

	return nil
}

// lineLogger an io.Writer that logs complete lines
type lineLogger struct {
	mu     sync.Mutex
	level  zerolog.Level
	prefix string
	buf    bytes.Buffer
}

func newLineLogger(level zerolog.Level, prefix string) (l *lineLogger) {
	return &lineLogger{
		level:  level,
		prefix: prefix,
	}
}

// Write buffers p and logs every complete line
func (l *lineLogger) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, _ = l.buf.Write(p)
	for {
		idx := bytes.IndexByte(l.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(l.buf.Next(idx + 1))
		l.log(line)
	}

	return n, nil
}

// Flush logs whatever is left in the buffer
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf.Len() > 0 {
		l.log(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) log(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	log.WithLevel(l.level).Msgf("[%s] %s", l.prefix, line)
}
