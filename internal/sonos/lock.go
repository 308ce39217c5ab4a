package sonos

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the device locks could not be acquired in time.
var ErrLockTimeout = errors.New("device lock timeout")

// DefaultLockTimeout is used when WithLock is given a zero timeout.
const DefaultLockTimeout = 120 * time.Second

// HostedClipKey serializes plays that replace the hosted clip.
const HostedClipKey = "hosted-clip"

type keyMutex struct {
	sem chan struct{}
}

// DeviceSetLock serializes plays whose device sets overlap. Plays on
// disjoint sets run concurrently.
type DeviceSetLock struct {
	mu      sync.Mutex
	mutexes map[string]*keyMutex
	logger  *log.Logger
}

// NewDeviceSetLock creates a new DeviceSetLock.
func NewDeviceSetLock(logger *log.Logger) *DeviceSetLock {
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceSetLock{
		mutexes: make(map[string]*keyMutex),
		logger:  logger,
	}
}

// WithLock runs fn while holding every key. Keys are taken in sorted order so
// overlapping callers cannot deadlock. If all keys cannot be acquired within
// timeout, the ones already held are released and ErrLockTimeout is returned.
func (l *DeviceSetLock) WithLock(keys []string, timeout time.Duration, fn func() error) error {
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}
	keys = normalizeKeys(keys)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	held := make([]*keyMutex, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
		}
	}

	for _, key := range keys {
		if l.IsLocked(key) {
			l.logger.Printf("Waiting for device lock %s", key)
		}
		km := l.getOrCreate(key)
		select {
		case km.sem <- struct{}{}:
			held = append(held, km)
		case <-deadline.C:
			release()
			l.logger.Printf("Timed out waiting for device lock %s", key)
			return ErrLockTimeout
		}
	}
	defer release()

	return fn()
}

// IsLocked reports whether key is currently held.
func (l *DeviceSetLock) IsLocked(key string) bool {
	l.mu.Lock()
	km, exists := l.mutexes[key]
	l.mu.Unlock()

	if !exists {
		return false
	}
	return len(km.sem) > 0
}

func (l *DeviceSetLock) getOrCreate(key string) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	km, exists := l.mutexes[key]
	if !exists {
		km = &keyMutex{sem: make(chan struct{}, 1)}
		l.mutexes[key] = km
	}
	return km
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
