package session

import "sync"

// OtpStore holds the short-lived correlation ids ("sid") issued by the
// gateway when an OTP email is dispatched, keyed by email. A sid is consumed
// exactly once on authentication; a missing entry is tolerated, since the
// gateway accepts an authenticate call without one.
type OtpStore struct {
	mu   sync.Mutex
	sids map[string]string
}

// NewOtpStore constructs an empty OtpStore.
func NewOtpStore() *OtpStore {
	return &OtpStore{sids: make(map[string]string)}
}

// Put records the sid for an email, replacing any previous one.
// An empty sid clears the entry.
func (o *OtpStore) Put(email, sid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sid == "" {
		delete(o.sids, email)
		return
	}
	o.sids[email] = sid
}

// Consume returns the email's sid and removes it. The second return is false
// when no sid was recorded; callers treat that as "authenticate without sid".
func (o *OtpStore) Consume(email string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sid, ok := o.sids[email]
	delete(o.sids, email)
	return sid, ok
}
