package deploy

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/journal/model"
	"github.com/joho/godotenv"
)

const (
	ECode070301 = e.Code0703 + "01"
	ECode070302 = e.Code0703 + "02"
	ECode070303 = e.Code0703 + "03"
	ECode070304 = e.Code0703 + "04"
	ECode070305 = e.Code0703 + "05"
	ECode070306 = e.Code0703 + "06"

	// ResultKeyMigrationRan result file key, true or false
	ResultKeyMigrationRan = "migration_ran"
	// ResultKeyBatchID result file key, the batch id or empty
	ResultKeyBatchID = "batch_id"
)

// FormatResult returns the result file content:
//
//	migration_ran=true
//	batch_id=2
func FormatResult(res *model.Result) string {
	sb := strings.Builder{}

	_, _ = sb.WriteString(ResultKeyMigrationRan)
	_ = sb.WriteByte('=')
	_, _ = sb.WriteString(strconv.FormatBool(res.MigrationRan))
	_ = sb.WriteByte('\n')

	_, _ = sb.WriteString(ResultKeyBatchID)
	_ = sb.WriteByte('=')
	if res.BatchID != nil {
		_, _ = sb.WriteString(strconv.Itoa(*res.BatchID))
	}
	_ = sb.WriteByte('\n')

	return sb.String()
}

// WriteResult replaces the result file, through a temp file in the same
// directory and a rename
func WriteResult(path string, res *model.Result) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return e.W(err, ECode070301, dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return e.W(err, ECode070302, path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(FormatResult(res)); err != nil {
		tmp.Close()
		return e.W(err, ECode070303, path)
	}
	if err := tmp.Close(); err != nil {
		return e.W(err, ECode070306, path)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return e.W(err, ECode070304, path)
	}

	return nil
}

// ReadResult reads a result file written by WriteResult
func ReadResult(path string) (res *model.Result, err error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, e.W(err, ECode070305, path)
	}

	res = &model.Result{}
	res.MigrationRan, _ = strconv.ParseBool(m[ResultKeyMigrationRan])
	if id, err := strconv.Atoi(m[ResultKeyBatchID]); err == nil {
		res.BatchID = &id
	}

	return res, nil
}
