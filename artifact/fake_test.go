package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	body         string
	lastModified time.Time
}

// fakeS3 an in memory bucket, listing two keys per page
type fakeS3 struct {
	bucket  string
	objects map[string]*fakeObject
	gets    []string
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{
		bucket:  bucket,
		objects: map[string]*fakeObject{},
	}
}

func (f *fakeS3) put(key, body string, lastModified time.Time) {
	f.objects[key] = &fakeObject{body: body, lastModified: lastModified}
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, errors.New("NoSuchBucket")
	}

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}

	out := &s3.ListObjectsV2Output{}
	end := start + 2
	if end < len(keys) {
		out.IsTruncated = true
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
	}

	for _, k := range keys[start:end] {
		o := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         int64(len(o.body)),
			LastModified: aws.Time(o.lastModified),
		})
	}

	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput,
	optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	o, ok := f.objects[key]
	if !ok || aws.ToString(in.Bucket) != f.bucket {
		return nil, errors.New("NoSuchKey")
	}
	f.gets = append(f.gets, key)

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewBufferString(o.body)),
	}, nil
}
