package kerbtypes

import "sync"

// CredentialSecret is an opaque byte buffer holding a password or a decoded
// password blob. Every exit path of every operation that creates one must
// call Zero before returning. Zero is idempotent and safe to defer.
type CredentialSecret struct {
	mu    sync.Mutex
	bytes []byte
	zeroed bool
}

// NewCredentialSecret takes ownership of b; callers must not retain or reuse
// the slice after handing it to NewCredentialSecret.
func NewCredentialSecret(b []byte) *CredentialSecret {
	return &CredentialSecret{bytes: b}
}

// Bytes returns the secret's current contents. Returns nil once Zero has run.
func (s *CredentialSecret) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zeroed {
		return nil
	}
	return s.bytes
}

// Len reports the secret length without exposing its contents.
func (s *CredentialSecret) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bytes)
}

// Zero overwrites the underlying buffer byte by byte. The loop is written so
// the compiler cannot prove the writes are dead and elide them, the idiomatic
// stand-in in Go for a platform secure-zero primitive.
func (s *CredentialSecret) Zero() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zeroed {
		return
	}
	zeroBytes(s.bytes)
	s.bytes = nil
	s.zeroed = true
}

//go:noinline
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
