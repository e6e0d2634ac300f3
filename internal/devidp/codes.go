package devidp

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrCodeNotFound = errors.New("authorization code not found")

// Grant is what an authorization code stands for until it is redeemed.
type Grant struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	Scope         string
	Nonce         string
	UserSub       string
	CreatedAt     time.Time
}

// CodeStore is a thread-safe in-memory store of single-use authorization codes.
type CodeStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	grants map[string]Grant
}

func NewCodeStore(ttl time.Duration, now func() time.Time) *CodeStore {
	if now == nil {
		now = time.Now
	}
	return &CodeStore{
		ttl:    ttl,
		now:    now,
		grants: make(map[string]Grant),
	}
}

// Put records a grant under code.
func (s *CodeStore) Put(code string, grant Grant) error {
	if code == "" {
		return errors.New("code cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[code] = grant
	return nil
}

// Take removes and returns the grant for code. A second Take of the same code,
// or a Take after the code expired, fails.
func (s *CodeStore) Take(code string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[code]
	if !ok {
		return Grant{}, ErrCodeNotFound
	}
	delete(s.grants, code)

	if s.now().Sub(grant.CreatedAt) > s.ttl {
		return Grant{}, ErrCodeNotFound
	}
	return grant, nil
}

// Sweep drops expired codes that were never redeemed.
func (s *CodeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := s.now().Add(-s.ttl)
	for code, grant := range s.grants {
		if grant.CreatedAt.Before(cutoff) {
			delete(s.grants, code)
			removed++
		}
	}
	return removed
}
