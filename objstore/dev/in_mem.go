package dev

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spirit-labs/strata/common"
	log "github.com/spirit-labs/strata/logger"
	"github.com/spirit-labs/strata/objstore"
)

func NewInMemStore(delay time.Duration) *InMemStore {
	return &InMemStore{
		delay:   delay,
		buckets: map[string]map[string]objectHolder{},
	}
}

// InMemStore is a simple in memory object store used for testing
type InMemStore struct {
	lock        sync.RWMutex
	buckets     map[string]map[string]objectHolder
	delay       time.Duration
	unavailable atomic.Bool
}

type objectHolder struct {
	value        []byte
	lastModified time.Time
}

func (f *InMemStore) Get(_ context.Context, bucket string, key string) ([]byte, error) {
	if err := f.checkUnavailable(); err != nil {
		return nil, err
	}
	f.maybeAddDelay()
	f.lock.RLock()
	defer f.lock.RUnlock()
	b, ok := f.buckets[bucket]
	if !ok {
		return nil, nil
	}
	holder, ok := b[key]
	if !ok {
		return nil, nil
	}
	return common.ByteSliceCopy(holder.value), nil
}

func (f *InMemStore) Put(_ context.Context, bucket string, key string, value []byte) error {
	if err := f.checkUnavailable(); err != nil {
		return err
	}
	f.maybeAddDelay()
	f.lock.Lock()
	defer f.lock.Unlock()
	log.Debugf("in mem store %p adding object with key %s value length %d", f, key, len(value))
	b, ok := f.buckets[bucket]
	if !ok {
		b = map[string]objectHolder{}
		f.buckets[bucket] = b
	}
	b[key] = objectHolder{value: common.ByteSliceCopy(value), lastModified: time.Now()}
	return nil
}

func (f *InMemStore) Delete(_ context.Context, bucket string, key string) error {
	if err := f.checkUnavailable(); err != nil {
		return err
	}
	f.maybeAddDelay()
	log.Debugf("in mem store %p deleting object with key %s", f, key)
	f.lock.Lock()
	defer f.lock.Unlock()
	b, ok := f.buckets[bucket]
	if ok {
		delete(b, key)
	}
	return nil
}

func (f *InMemStore) DeleteAll(_ context.Context, bucket string, keys []string) error {
	if err := f.checkUnavailable(); err != nil {
		return err
	}
	f.maybeAddDelay()
	f.lock.Lock()
	defer f.lock.Unlock()
	b, ok := f.buckets[bucket]
	if ok {
		for _, key := range keys {
			delete(b, key)
		}
	}
	return nil
}

func (f *InMemStore) ListObjectsWithPrefix(_ context.Context, bucket string, prefix string, maxKeys int) ([]objstore.ObjectInfo, error) {
	if err := f.checkUnavailable(); err != nil {
		return nil, err
	}
	f.maybeAddDelay()
	f.lock.RLock()
	defer f.lock.RUnlock()
	b, ok := f.buckets[bucket]
	if !ok {
		return nil, nil
	}
	var infos []objstore.ObjectInfo
	for key, holder := range b {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, objstore.ObjectInfo{Key: key, LastModified: holder.lastModified})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Key < infos[j].Key
	})
	if maxKeys > 0 && len(infos) > maxKeys {
		infos = infos[:maxKeys]
	}
	return infos, nil
}

func (f *InMemStore) SetUnavailable(unavailable bool) {
	f.unavailable.Store(unavailable)
}

func (f *InMemStore) checkUnavailable() error {
	if f.unavailable.Load() {
		return common.NewStrataErrorf(common.Unavailable, "object store is unavailable")
	}
	return nil
}

func (f *InMemStore) maybeAddDelay() {
	if f.delay != 0 {
		time.Sleep(f.delay)
	}
}

func (f *InMemStore) Start() error {
	return nil
}

func (f *InMemStore) Stop() error {
	return nil
}
