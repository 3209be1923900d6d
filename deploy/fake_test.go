package deploy

import (
	"context"
	"errors"

	"github.com/Skyrin/go-deploy/artifact"
	"github.com/Skyrin/go-deploy/kafka"
	"github.com/Skyrin/go-deploy/paramstore"
)

type fakeParams struct {
	pList []*paramstore.Parameter
	err   error
	paths []string
}

func (f *fakeParams) GetByPath(ctx context.Context, path string) ([]*paramstore.Parameter, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.pList, nil
}

type syncCall struct {
	src, dst string
	opts     artifact.SyncOptions
}

type fakeArtifacts struct {
	syncs   []syncCall
	copies  [][2]string
	syncErr error
	copyErr error
}

func (f *fakeArtifacts) Sync(ctx context.Context, src, dstDir string,
	opts artifact.SyncOptions) (*artifact.SyncResult, error) {
	f.syncs = append(f.syncs, syncCall{src: src, dst: dstDir, opts: opts})
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &artifact.SyncResult{Downloaded: 1}, nil
}

func (f *fakeArtifacts) Copy(ctx context.Context, src, dstPath string) error {
	f.copies = append(f.copies, [2]string{src, dstPath})
	return f.copyErr
}

type fakePublisher struct {
	events []*kafka.Event
	fail   bool
}

func (f *fakePublisher) Publish(ctx context.Context, ev *kafka.Event) error {
	f.events = append(f.events, ev)
	if f.fail {
		return errors.New("broker unreachable")
	}
	return nil
}
