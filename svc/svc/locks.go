package svc

import (
	"hash/maphash"
	"sync"
)

const lockStripes = 256

// keyLocks serializes operations on the same token. Tokens hash onto a fixed
// set of mutexes, so unrelated tokens occasionally share one.
type keyLocks struct {
	seed    maphash.Seed
	stripes [lockStripes]sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{seed: maphash.MakeSeed()}
}

// Lock acquires the stripe for key and returns its unlock function.
func (k *keyLocks) Lock(key string) func() {
	m := &k.stripes[maphash.String(k.seed, key)%lockStripes]
	m.Lock()
	return m.Unlock
}
