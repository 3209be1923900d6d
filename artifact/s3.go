// Package artifact downloads deployment artifacts, the migration scripts and
// the release bundle, from S3 to the local file system.
package artifact

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Skyrin/go-deploy/e"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const (
	ECode050101 = e.Code0501 + "01"
	ECode050102 = e.Code0501 + "02"
	ECode050103 = e.Code0501 + "03"
	ECode050104 = e.Code0501 + "04"
	ECode050105 = e.Code0501 + "05"
	ECode050106 = e.Code0501 + "06"
	ECode050107 = e.Code0501 + "07"
	ECode050108 = e.Code0501 + "08"
	ECode050109 = e.Code0501 + "09"
	ECode05010A = e.Code0501 + "0A"
	ECode05010B = e.Code0501 + "0B"
	ECode05010C = e.Code0501 + "0C"
	ECode05010D = e.Code0501 + "0D"
	ECode05010E = e.Code0501 + "0E"
	ECode05010F = e.Code0501 + "0F"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Client the subset of the S3 API used by the store
type Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput,
		optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SyncOptions options for Sync
type SyncOptions struct {
	// Delete removes local files that do not exist under the source prefix
	Delete bool
}

// SyncResult counts of what a sync did
type SyncResult struct {
	Downloaded int
	Skipped    int
	Deleted    int
}

// Store downloads objects from S3
type Store struct {
	client Client
}

// NewStore initializes a new store with the S3 client
func NewStore(client Client) (s *Store) {
	return &Store{
		client: client,
	}
}

// NewStoreFromConfig initializes a new store from an AWS config
func NewStoreFromConfig(cfg aws.Config) (s *Store) {
	return NewStore(s3.NewFromConfig(cfg))
}

// object a remote object relative to the synced prefix
type object struct {
	key          string
	rel          string
	size         int64
	lastModified time.Time
}

// Sync mirrors every object under the source prefix into dstDir. An object is
// downloaded if the local copy is missing, has a different size or is older
// than the object. Keys ending in '/' are skipped.
func (s *Store) Sync(ctx context.Context, src, dstDir string, opts SyncOptions) (res *SyncResult, err error) {
	u, err := ParseURI(src)
	if err != nil {
		return nil, e.W(err, ECode050101)
	}

	objs, err := s.list(ctx, u, dstDir)
	if err != nil {
		return nil, e.W(err, ECode050102)
	}

	if err := os.MkdirAll(dstDir, dirPerm); err != nil {
		return nil, e.W(err, ECode050103, dstDir)
	}

	res = &SyncResult{}
	remote := make(map[string]bool, len(objs))
	for _, o := range objs {
		remote[o.rel] = true
		local := filepath.Join(dstDir, o.rel)

		if upToDate(local, o) {
			res.Skipped++
			continue
		}

		if err := s.download(ctx, u.Bucket, o.key, local); err != nil {
			return nil, e.W(err, ECode050104, o.key)
		}
		if !o.lastModified.IsZero() {
			if err := os.Chtimes(local, o.lastModified, o.lastModified); err != nil {
				return nil, e.W(err, ECode050105, local)
			}
		}
		res.Downloaded++
	}

	if opts.Delete {
		res.Deleted, err = deleteExtra(dstDir, remote)
		if err != nil {
			return nil, e.W(err, ECode050106)
		}
	}

	log.Info().Msgf("synced %s to %s: %d downloaded, %d up to date, %d deleted",
		u, dstDir, res.Downloaded, res.Skipped, res.Deleted)

	return res, nil
}

// list returns all objects under the prefix of the uri, with their path
// relative to dstDir validated
func (s *Store) list(ctx context.Context, u *URI, dstDir string) (objs []*object, err error) {
	prefix := u.Prefix()
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(u.Bucket),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, in)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, e.W(err, ECode050107, u.String())
		}

		for _, c := range out.Contents {
			key := aws.ToString(c.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}

			rel, err := relPath(strings.TrimPrefix(key, prefix))
			if err != nil {
				return nil, e.W(err, ECode050108, key, dstDir)
			}

			objs = append(objs, &object{
				key:          key,
				rel:          rel,
				size:         c.Size,
				lastModified: aws.ToTime(c.LastModified),
			})
		}
	}

	return objs, nil
}

// relPath converts a key suffix to a local relative path. Keys that would
// resolve outside of the destination directory are rejected.
func relPath(suffix string) (rel string, err error) {
	rel = filepath.Clean(filepath.FromSlash(suffix))
	if rel == "." || rel == "" || filepath.IsAbs(rel) ||
		rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", e.WWM(nil, ECode050109, e.MsgArtifactKeyInvalid, suffix)
	}
	return rel, nil
}

// upToDate checks if the local file has the object's size and is not older
func upToDate(local string, o *object) bool {
	fi, err := os.Stat(local)
	if err != nil || fi.IsDir() {
		return false
	}
	if fi.Size() != o.size {
		return false
	}
	return !fi.ModTime().Before(o.lastModified)
}

// deleteExtra removes files under dir that are not in keep
func deleteExtra(dir string, keep map[string]bool) (deleted int, err error) {
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if keep[rel] {
			return nil
		}

		if err := os.Remove(p); err != nil {
			return err
		}
		log.Debug().Msgf("removed %s, not in source", p)
		deleted++
		return nil
	})
	if err != nil {
		return deleted, e.W(err, ECode05010A, dir)
	}

	return deleted, nil
}

// Copy downloads a single object to dstPath
func (s *Store) Copy(ctx context.Context, src, dstPath string) (err error) {
	u, err := ParseURI(src)
	if err != nil {
		return e.W(err, ECode05010B)
	}

	if u.Key == "" || strings.HasSuffix(u.Key, "/") {
		return e.WWM(nil, ECode05010C, e.MsgArtifactKeyInvalid, src)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), dirPerm); err != nil {
		return e.W(err, ECode05010D, dstPath)
	}

	if err := s.download(ctx, u.Bucket, u.Key, dstPath); err != nil {
		return e.W(err, ECode05010E, src)
	}

	log.Info().Msgf("copied %s to %s", u, dstPath)

	return nil
}

// download writes the object to a temp file next to dst, then renames it, so
// dst is never left half written
func (s *Store) download(ctx context.Context, bucket, key, dst string) (err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return e.W(err, ECode05010F, bucket, key)
	}
	defer out.Body.Close()

	return writeFile(dst, out.Body)
}

// writeFile atomically replaces path with the content of r
func writeFile(path string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return err
	}
	if err = tmp.Chmod(filePerm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
