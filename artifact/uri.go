package artifact

import (
	"net/url"
	"strings"

	"github.com/Skyrin/go-deploy/e"
)

const (
	ECode050201 = e.Code0502 + "01"
	ECode050202 = e.Code0502 + "02"
	ECode050203 = e.Code0502 + "03"

	// SchemeS3 the only supported scheme
	SchemeS3 = "s3"
)

// URI an object or prefix location, i.e. s3://bucket/releases/1.2.0/
type URI struct {
	Bucket string
	Key    string
}

// String returns the URI in s3://bucket/key form
func (u *URI) String() string {
	return SchemeS3 + "://" + u.Bucket + "/" + u.Key
}

// ParseURI parses an s3://bucket/key URI. The key may be empty, meaning the
// whole bucket.
func ParseURI(raw string) (u *URI, err error) {
	pu, err := url.Parse(raw)
	if err != nil {
		return nil, e.WWM(err, ECode050201, e.MsgArtifactURIInvalid, raw)
	}

	if pu.Scheme != SchemeS3 {
		return nil, e.WWM(nil, ECode050202, e.MsgArtifactURIInvalid, raw)
	}

	if pu.Host == "" {
		return nil, e.WWM(nil, ECode050203, e.MsgArtifactURIInvalid, raw)
	}

	return &URI{
		Bucket: pu.Host,
		Key:    strings.TrimPrefix(pu.Path, "/"),
	}, nil
}

// Prefix returns the key as a list prefix, ending in '/' unless empty
func (u *URI) Prefix() string {
	if u.Key == "" || strings.HasSuffix(u.Key, "/") {
		return u.Key
	}
	return u.Key + "/"
}
