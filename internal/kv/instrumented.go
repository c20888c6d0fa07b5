package kv

import "github.com/kvbfs-project/kvbfs/internal/metrics"

// Instrument wraps store so every Get/Put/Delete/NewIterator call is
// counted against metrics, labeled by operation kind. It changes no
// behavior: every call is forwarded to store unmodified.
func Instrument(store Store, m metrics.Handle) Store {
	return &instrumented{store: store, metrics: m}
}

type instrumented struct {
	store   Store
	metrics metrics.Handle
}

func (i *instrumented) Get(key []byte) ([]byte, bool, error) {
	i.metrics.KVOpsInc("get")
	return i.store.Get(key)
}

func (i *instrumented) Put(key, value []byte) error {
	i.metrics.KVOpsInc("put")
	return i.store.Put(key, value)
}

func (i *instrumented) Delete(key []byte) error {
	i.metrics.KVOpsInc("delete")
	return i.store.Delete(key)
}

func (i *instrumented) NewIterator(prefix []byte) (Iterator, error) {
	i.metrics.KVOpsInc("iterate")
	return i.store.NewIterator(prefix)
}

func (i *instrumented) Close() error {
	return i.store.Close()
}
