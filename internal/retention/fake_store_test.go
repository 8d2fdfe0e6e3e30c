package retention

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]storage.ObjectInfo
	listErr   error
	deleteErr map[string]error
	lists     int
}

func newFakeStore(objects ...storage.ObjectInfo) *fakeStore {
	store := &fakeStore{objects: map[string]storage.ObjectInfo{}}
	for _, object := range objects {
		store.objects[object.Key] = object
	}
	return store
}

func (f *fakeStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (f *fakeStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (f *fakeStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	object, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return object, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]storage.ObjectInfo, 0, len(f.objects))
	for _, object := range f.objects {
		if strings.HasPrefix(object.Key, prefix) {
			out = append(out, object)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].Key < out[j].Key
		}
		return out[i].LastModified.Before(out[j].LastModified)
	})
	return out, nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for key := range f.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (f *fakeStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}
