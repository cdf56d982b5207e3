package router

import "sync"

// LockManager hands out one mutex per actor address so that messages for the
// same actor are processed one at a time.
type LockManager struct {
	locks sync.Map
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// GetLock returns the mutex for addr.
func (lm *LockManager) GetLock(addr [20]byte) *sync.Mutex {
	lock, _ := lm.locks.LoadOrStore(addr, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
