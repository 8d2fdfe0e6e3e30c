package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Artifacts serves export files from the local scratch store and, when
// Remote is set, mirrors finished files to an object store.
type Artifacts struct {
	Local  ObjectStore
	Remote ObjectStore
	// KeepLocal keeps the scratch copy after a successful upload.
	KeepLocal bool
}

func (a *Artifacts) Mirrored() bool {
	return a.Remote != nil
}

// Publish uploads a finished artifact to the remote store. Without a remote
// store it is a no-op.
func (a *Artifacts) Publish(ctx context.Context, name string) error {
	if a.Remote == nil {
		return nil
	}
	if err := ValidateArtifactName(name); err != nil {
		return err
	}
	info, err := a.Local.Stat(ctx, name)
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	body, err := a.Local.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = body.Close() }()

	if _, err := a.Remote.Put(ctx, name, body, info.Size, ArtifactPutOptions(name)); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if a.KeepLocal {
		return nil
	}
	if err := a.Local.Delete(ctx, name); err != nil {
		return fmt.Errorf("remove scratch copy %s: %w", name, err)
	}
	return nil
}

// Open returns the artifact body, preferring the scratch copy.
func (a *Artifacts) Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateArtifactName(name); err != nil {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	body, info, err := openFrom(ctx, a.Local, name)
	if err == nil || !errors.Is(err, ErrObjectNotFound) || a.Remote == nil {
		return body, info, err
	}
	return openFrom(ctx, a.Remote, name)
}

// Stores lists the configured stores, scratch first.
func (a *Artifacts) Stores() []ObjectStore {
	stores := []ObjectStore{a.Local}
	if a.Remote != nil {
		stores = append(stores, a.Remote)
	}
	return stores
}

func openFrom(ctx context.Context, store ObjectStore, name string) (io.ReadCloser, ObjectInfo, error) {
	info, err := store.Stat(ctx, name)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	body, err := store.Get(ctx, name)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return body, info, nil
}
