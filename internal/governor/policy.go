package governor

import "sync"

// Policy is the process-wide gate deciding whether upstream calls are
// permitted right now. Allow and Deny scopes nest: a call is permitted when
// at least one allow scope is open, or when no deny scope is open and the
// default is allow. Scopes are strictly LIFO; callers must release in
// reverse order of acquisition, which defer guarantees.
type Policy struct {
	mu           sync.Mutex
	defaultAllow bool
	allowReasons []string
	denyReasons  []string
}

// NewPolicy creates a Policy with the given default when no scope is open.
func NewPolicy(defaultAllow bool) *Policy {
	return &Policy{defaultAllow: defaultAllow}
}

// Allow opens an allow scope with a human-readable reason and returns the
// release func. Call it with defer so the scope closes on every exit path.
func (p *Policy) Allow(reason string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowReasons = append(p.allowReasons, reason)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.allowReasons = p.allowReasons[:len(p.allowReasons)-1]
	}
}

// Deny opens a deny scope with a human-readable reason and returns the
// release func.
func (p *Policy) Deny(reason string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyReasons = append(p.denyReasons, reason)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.denyReasons = p.denyReasons[:len(p.denyReasons)-1]
	}
}

// Permitted reports whether a call may proceed, along with the reason of the
// innermost scope that decided the outcome.
func (p *Policy) Permitted() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.allowReasons); n > 0 {
		return true, p.allowReasons[n-1]
	}
	if n := len(p.denyReasons); n > 0 {
		return false, p.denyReasons[n-1]
	}
	if p.defaultAllow {
		return true, "default allow"
	}
	return false, "default deny"
}
