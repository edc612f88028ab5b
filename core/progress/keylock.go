package progress

import "sync"

// keyLocker serializes work per key. Entries are dropped once nobody holds or waits for them.
type keyLocker struct {
	mutex sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[Key]*keyLock)}
}

// Lock blocks until key is free and returns the func releasing it.
func (kl *keyLocker) Lock(key Key) (unlock func()) {
	kl.mutex.Lock()
	l, ok := kl.locks[key]
	if !ok {
		l = new(keyLock)
		kl.locks[key] = l
	}
	l.refs++
	kl.mutex.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		kl.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(kl.locks, key)
		}
		kl.mutex.Unlock()
	}
}

func (kl *keyLocker) len() int {
	kl.mutex.Lock()
	defer kl.mutex.Unlock()
	return len(kl.locks)
}
