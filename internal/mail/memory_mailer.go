package mail

import "sync"

// SentMail records one delivered message for assertions.
type SentMail struct {
	To   string
	Name string
	Link string
	Kind string
}

// MemoryMailer captures outgoing mail in memory. Used in tests and when no
// SMTP relay is configured.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []SentMail

	// Err, when set, is returned from every send.
	Err error
}

func NewMemoryMailer() *MemoryMailer { return &MemoryMailer{} }

func (m *MemoryMailer) SendVerification(to, name, link string) error {
	return m.record(SentMail{To: to, Name: name, Link: link, Kind: "verification"})
}

func (m *MemoryMailer) SendPasswordReset(to, name, link string) error {
	return m.record(SentMail{To: to, Name: name, Link: link, Kind: "password-reset"})
}

func (m *MemoryMailer) record(s SentMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, s)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *MemoryMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}
