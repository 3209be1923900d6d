package migration

import (
	"hash/crc32"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		description string
		wantErr     bool
	}{
		{name: "V1__init.sql", version: "1", description: "init"},
		{name: "2__add_table.sql", version: "2", description: "add table"},
		{name: "V001__padded.sql", version: "1", description: "padded"},
		{name: "V1.2__minor.sql", version: "1.2", description: "minor"},
		{name: "V2_1__underscore_version.sql", version: "2.1", description: "underscore version"},
		{name: "init.sql", wantErr: true},
		{name: "Vx__bad.sql", wantErr: true},
		{name: "__missing.sql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, d, _, err := ParseFileName(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, v)
			assert.Equal(t, tt.description, d)
		})
	}
}

func TestCompareVersion(t *testing.T) {
	assert.Equal(t, -1, CompareVersion("2", "10"))
	assert.Equal(t, 1, CompareVersion("1.10", "1.9"))
	assert.Equal(t, 0, CompareVersion("1", "1.0"))
	assert.Equal(t, -1, CompareVersion("1", "1.0.1"))
}

func TestGetFilesSortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/V10__later.sql":    {Data: []byte("SELECT 10;")},
		"migrations/V2__add_table.sql": {Data: []byte("SELECT 2;")},
		"migrations/V1__init.sql":      {Data: []byte("SELECT 1;")},
		"migrations/README.md":         {Data: []byte("docs")},
		"migrations/.V3__hidden.sql":   {Data: []byte("SELECT 3;")},
		"migrations/nested/V4__x.sql":  {Data: []byte("SELECT 4;")},
	}

	fList, err := NewList(fsys, "migrations").GetFiles()
	require.NoError(t, err)
	require.Len(t, fList, 3)

	assert.Equal(t, "1", fList[0].Version)
	assert.Equal(t, "2", fList[1].Version)
	assert.Equal(t, "10", fList[2].Version)
	assert.Equal(t, []byte("SELECT 1;"), fList[0].SQL)
	assert.Equal(t, int32(crc32.ChecksumIEEE([]byte("SELECT 1;"))), fList[0].Checksum)
}

func TestGetFilesDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/V1__init.sql":  {Data: []byte("SELECT 1;")},
		"m/V01__also.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := NewList(fsys, "m").GetFiles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate version 1")
}

func TestGetFilesDuplicateTrailingZero(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		key   string
	}{
		{name: "1 and 1.0", files: []string{"V1__init.sql", "V1.0__again.sql"}, key: "1"},
		{name: "2.1 and 2_1_0", files: []string{"V2.1__a.sql", "V2_1_0__b.sql"}, key: "2.1"},
		{name: "0 and 0.0", files: []string{"V0__base.sql", "V0.0__base.sql"}, key: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for _, f := range tt.files {
				fsys["m/"+f] = &fstest.MapFile{Data: []byte("SELECT 1;")}
			}

			_, err := NewList(fsys, "m").GetFiles()
			require.Error(t, err)
			assert.Contains(t, err.Error(), ECode020206)
			assert.Contains(t, err.Error(), "duplicate version "+tt.key+":")
		})
	}
}

func TestGetFilesDistinctVersionsWithZeros(t *testing.T) {
	fsys := fstest.MapFS{
		"m/V1__init.sql":    {Data: []byte("SELECT 1;")},
		"m/V1.0.1__fix.sql": {Data: []byte("SELECT 2;")},
		"m/V1.1__minor.sql": {Data: []byte("SELECT 3;")},
		"m/V10__later.sql":  {Data: []byte("SELECT 4;")},
	}

	fList, err := NewList(fsys, "m").GetFiles()
	require.NoError(t, err)
	require.Len(t, fList, 4)
	assert.Equal(t, "1", fList[0].Version)
	assert.Equal(t, "1.0.1", fList[1].Version)
	assert.Equal(t, "1.1", fList[2].Version)
	assert.Equal(t, "10", fList[3].Version)
}

func TestGetFilesInvalidName(t *testing.T) {
	fsys := fstest.MapFS{
		"m/init.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := NewList(fsys, "m").GetFiles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ECode020201)
}
