package artifact

import (
	"testing"

	"github.com/Skyrin/go-deploy/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("s3://deploy-bucket/releases/1.2.0/migrations")
	require.NoError(t, err)
	assert.Equal(t, "deploy-bucket", u.Bucket)
	assert.Equal(t, "releases/1.2.0/migrations", u.Key)
	assert.Equal(t, "releases/1.2.0/migrations/", u.Prefix())
	assert.Equal(t, "s3://deploy-bucket/releases/1.2.0/migrations", u.String())

	u, err = ParseURI("s3://deploy-bucket")
	require.NoError(t, err)
	assert.Equal(t, "", u.Key)
	assert.Equal(t, "", u.Prefix())

	u, err = ParseURI("s3://deploy-bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, "dir/", u.Prefix())
}

func TestParseURIInvalid(t *testing.T) {
	for _, raw := range []string{"", "https://bucket/key", "/local/path", "s3:///key"} {
		_, err := ParseURI(raw)
		require.Error(t, err, raw)
		ee := e.AsExtendedError(err)
		require.NotNil(t, ee, raw)
		assert.Contains(t, ee.Message, e.MsgArtifactURIInvalid, raw)
	}
}
