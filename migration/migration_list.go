package migration

import (
	"hash/crc32"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/Skyrin/go-deploy/e"
)

const (
	ECode020201 = e.Code0202 + "01"
	ECode020202 = e.Code0202 + "02"
	ECode020203 = e.Code0202 + "03"
	ECode020204 = e.Code0202 + "04"
	ECode020205 = e.Code0202 + "05"
	ECode020206 = e.Code0202 + "06"
	ECode020207 = e.Code0202 + "07"

	fileExt         = ".sql"
	descriptionSep  = "__"
	versionedPrefix = "V"
)

// File a single migration script
type File struct {
	Name        string
	Version     string
	Description string
	SQL         []byte
	Checksum    int32

	segments []int
}

// List the migration files found in a directory
type List struct {
	fsys fs.FS
	path string
}

// NewList initialize a new list reading path from the file system
func NewList(fsys fs.FS, path string) (l *List) {
	return &List{
		fsys: fsys,
		path: path,
	}
}

// NewDirList initialize a new list reading from a local directory
func NewDirList(dir string) (l *List) {
	return NewList(os.DirFS(dir), ".")
}

// ParseFileName parse the name for the version and description. The name is
// expected to be [V]<version>__<description>.sql, where the version is one or
// more numbers separated by '.' or '_'. i.e. V1__init.sql, 2_1__add_table.sql
func ParseFileName(name string) (version, description string, segments []int, err error) {
	base := strings.TrimSuffix(name, fileExt)
	base = strings.TrimPrefix(base, versionedPrefix)

	idx := strings.Index(base, descriptionSep)
	if idx <= 0 {
		return "", "", nil, e.WWM(nil, ECode020201, e.MsgMigrationFileNameInvalid, name)
	}

	rawVersion := strings.ReplaceAll(base[:idx], "_", ".")
	description = strings.ReplaceAll(base[idx+len(descriptionSep):], "_", " ")

	for _, s := range strings.Split(rawVersion, ".") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", "", nil, e.WWM(err, ECode020202, e.MsgMigrationFileNameInvalid, name)
		}
		if n < 0 {
			return "", "", nil, e.WWM(nil, ECode020203, e.MsgMigrationFileNameInvalid, name)
		}
		segments = append(segments, n)
	}

	// Normalize, so 001 and 1 are the same version
	parts := make([]string, len(segments))
	for i, n := range segments {
		parts[i] = strconv.Itoa(n)
	}

	return strings.Join(parts, "."), description, segments, nil
}

// CompareVersion compares two version strings numerically, segment by segment.
// Returns -1, 0 or 1. Missing trailing segments count as 0, so 1 == 1.0.
func CompareVersion(a, b string) int {
	return compareSegments(splitVersion(a), splitVersion(b))
}

func splitVersion(v string) (segments []int) {
	for _, s := range strings.Split(v, ".") {
		n, _ := strconv.Atoi(s)
		segments = append(segments, n)
	}
	return segments
}

func compareSegments(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// versionKey renders segments without trailing zero segments
func versionKey(segments []int) string {
	n := len(segments)
	for n > 1 && segments[n-1] == 0 {
		n--
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = strconv.Itoa(segments[i])
	}
	return strings.Join(parts, ".")
}

// GetFiles reads all migration files of the list, sorted by version ascending.
// Directories, hidden files and files without the .sql extension are ignored.
func (l *List) GetFiles() (fList []*File, err error) {
	dirList, err := fs.ReadDir(l.fsys, l.path)
	if err != nil {
		return nil, e.W(err, ECode020204)
	}
	fList = make([]*File, 0, len(dirList))
	seen := make(map[string]string, len(dirList))

	// Load files first, then sort according to version
	for _, file := range dirList {
		if file.IsDir() || strings.HasPrefix(file.Name(), ".") ||
			!strings.HasSuffix(file.Name(), fileExt) {
			continue
		}

		f := &File{
			Name: file.Name(),
		}

		f.Version, f.Description, f.segments, err = ParseFileName(f.Name)
		if err != nil {
			return nil, e.W(err, ECode020205)
		}

		// 1 and 1.0 compare equal, so they share a key
		key := versionKey(f.segments)
		if other, ok := seen[key]; ok {
			return nil, e.WWM(nil, ECode020206, e.MsgMigrationFileNameInvalid,
				"duplicate version "+key+": "+other+", "+f.Name)
		}
		seen[key] = f.Name

		f.SQL, err = fs.ReadFile(l.fsys, path.Join(l.path, f.Name))
		if err != nil {
			return nil, e.W(err, ECode020207)
		}
		f.Checksum = int32(crc32.ChecksumIEEE(f.SQL))

		fList = append(fList, f)
	}

	// Sort files by version ascending
	sort.SliceStable(fList, func(i, j int) bool {
		return compareSegments(fList[i].segments, fList[j].segments) < 0
	})

	return fList, nil
}
