package testutil

import (
	"crypto/rand"
	"sync"
)

// GenerateRandomData returns size bytes of random content.
func GenerateRandomData(size int) []byte {
	data := make([]byte, size)
	_, _ = rand.Read(data)
	return data
}

// PatternData returns size bytes of a deterministic repeating pattern,
// cheap to generate and easy to eyeball in failures.
func PatternData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return data
}

// MockProgressTracker records progress callbacks. Safe for concurrent use,
// as trackers are called from transfer workers.
type MockProgressTracker struct {
	mu          sync.Mutex
	updates     int
	transferred int64
	total       int64
	completed   bool
	err         error
}

// Update records a progress callback.
func (t *MockProgressTracker) Update(bytesTransferred, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates++
	if bytesTransferred > t.transferred {
		t.transferred = bytesTransferred
	}
	t.total = totalBytes
}

// Complete records a completion callback.
func (t *MockProgressTracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = true
}

// Error records a failure callback.
func (t *MockProgressTracker) Error(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Updates returns how many Update callbacks were recorded.
func (t *MockProgressTracker) Updates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates
}

// Transferred returns the highest transferred byte count observed.
func (t *MockProgressTracker) Transferred() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferred
}

// Completed reports whether Complete was called.
func (t *MockProgressTracker) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Err returns the recorded failure, if any.
func (t *MockProgressTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
