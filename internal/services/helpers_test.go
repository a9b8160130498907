package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/policy"
	"github.com/BradenHooton/bastion/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func discardAudit() *logger.AuditLogger {
	return logger.NewAuditLogger(discardLogger())
}

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAttemptRepository implements AttemptRepository in memory.
// Setting err simulates a storage outage for every call.
type memAttemptRepository struct {
	mu      sync.Mutex
	records []models.AttemptRecord
	err     error
	panics  bool
}

func (r *memAttemptRepository) Record(_ context.Context, subjectID string, purpose models.Purpose, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panics {
		panic("attempt storage exploded")
	}
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, models.AttemptRecord{SubjectID: subjectID, Purpose: purpose, OccurredAt: at})
	return nil
}

func (r *memAttemptRepository) CountSince(_ context.Context, subjectID string, purpose models.Purpose, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, rec := range r.records {
		if rec.SubjectID == subjectID && rec.Purpose == purpose && !rec.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAttemptRepository) DeleteBySubject(_ context.Context, subjectID string, purpose models.Purpose) (int64, error) {
	return r.deleteWhere(func(rec models.AttemptRecord) bool {
		return rec.SubjectID == subjectID && rec.Purpose == purpose
	})
}

func (r *memAttemptRepository) DeleteOlderThan(_ context.Context, purpose models.Purpose, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(rec models.AttemptRecord) bool {
		return rec.Purpose == purpose && rec.OccurredAt.Before(cutoff)
	})
}

func (r *memAttemptRepository) deleteWhere(match func(models.AttemptRecord) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	kept := r.records[:0]
	var deleted int64
	for _, rec := range r.records {
		if match(rec) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

func (r *memAttemptRepository) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *memAttemptRepository) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// memTokenRepository implements VerificationTokenRepository in memory with
// the same conditional consume as the SQL version.
type memTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*models.VerificationToken
}

func newMemTokenRepository() *memTokenRepository {
	return &memTokenRepository{tokens: make(map[string]*models.VerificationToken)}
}

func (r *memTokenRepository) Create(_ context.Context, token *models.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.TokenHash]; ok {
		return models.ErrConflict
	}
	copied := *token
	r.tokens[token.TokenHash] = &copied
	return nil
}

func (r *memTokenRepository) GetByHash(_ context.Context, tokenHash string) (*models.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (r *memTokenRepository) MarkConsumed(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok || token.ConsumedAt != nil || !at.Before(token.ExpiresAt) {
		return models.ErrNotFound
	}
	consumed := at
	token.ConsumedAt = &consumed
	return nil
}

func (r *memTokenRepository) DeleteUnconsumed(_ context.Context, subjectID string, purpose models.Purpose) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for hash, token := range r.tokens {
		if token.SubjectID == subjectID && token.Purpose == purpose && token.ConsumedAt == nil {
			delete(r.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memTokenRepository) DeleteExpired(_ context.Context, purpose models.Purpose, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for hash, token := range r.tokens {
		if token.Purpose == purpose && token.ExpiresAt.Before(now) {
			delete(r.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memTokenRepository) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// memLinkSessionStore implements LinkSessionStore in memory
type memLinkSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.LinkSession
	err      error
}

func newMemLinkSessionStore() *memLinkSessionStore {
	return &memLinkSessionStore{sessions: make(map[string]models.LinkSession)}
}

func (s *memLinkSessionStore) Put(_ context.Context, sessionID string, session *models.LinkSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sessions[sessionID] = *session
	return nil
}

func (s *memLinkSessionStore) Take(_ context.Context, sessionID string) (*models.LinkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return &session, nil
}

func (s *memLinkSessionStore) has(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// memIdentityLinkRepository implements IdentityLinkRepository in memory
type memIdentityLinkRepository struct {
	mu    sync.Mutex
	links []*models.IdentityLink
	err   error
}

func (r *memIdentityLinkRepository) Upsert(_ context.Context, link *models.IdentityLink) (*models.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	for _, existing := range r.links {
		if existing.Provider == link.Provider && existing.ProviderSubject == link.ProviderSubject {
			if existing.SubjectID != link.SubjectID {
				return nil, models.ErrIdentityInUse
			}
			existing.Email = link.Email
			existing.Claims = link.Claims
			copied := *existing
			return &copied, nil
		}
	}

	for _, existing := range r.links {
		if existing.SubjectID == link.SubjectID && existing.Provider == link.Provider {
			existing.ProviderSubject = link.ProviderSubject
			existing.Email = link.Email
			existing.Claims = link.Claims
			existing.Enabled = true
			copied := *existing
			return &copied, nil
		}
	}

	created := *link
	created.ID = link.Provider + ":" + link.ProviderSubject
	created.Enabled = true
	r.links = append(r.links, &created)
	copied := created
	return &copied, nil
}

func (r *memIdentityLinkRepository) FindEnabledByProviderSubject(_ context.Context, provider, providerSubject string) (*models.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.Provider == provider && link.ProviderSubject == providerSubject && link.Enabled {
			copied := *link
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memIdentityLinkRepository) ListBySubject(_ context.Context, subjectID string) ([]*models.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.IdentityLink
	for _, link := range r.links {
		if link.SubjectID == subjectID {
			copied := *link
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memIdentityLinkRepository) SetEnabled(_ context.Context, subjectID, provider string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.SubjectID == subjectID && link.Provider == provider {
			link.Enabled = enabled
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *memIdentityLinkRepository) Delete(_ context.Context, subjectID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, link := range r.links {
		if link.SubjectID == subjectID && link.Provider == provider {
			r.links = append(r.links[:i], r.links[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

// fakeAccount is one local subject held by fakeAccounts
type fakeAccount struct {
	email    string
	password string
	required bool
}

// fakeAccounts implements CredentialStore and DirectoryLookup in memory
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	setErr   error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]*fakeAccount)}
}

func (f *fakeAccounts) add(subjectID, email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[subjectID] = &fakeAccount{email: email, password: "enc:" + password}
}

func (f *fakeAccounts) get(subjectID string) *fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[subjectID]
}

func (f *fakeAccounts) VerifyPassword(_ context.Context, subjectID, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[subjectID]
	return ok && acct.password == "enc:"+password, nil
}

func (f *fakeAccounts) Encode(password string) (string, error) {
	return "enc:" + password, nil
}

func (f *fakeAccounts) SetPassword(_ context.Context, subjectID, encoded string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	acct, ok := f.accounts[subjectID]
	if !ok {
		return models.ErrNotFound
	}
	acct.password = encoded
	return nil
}

func (f *fakeAccounts) PasswordChangeRequired(_ context.Context, subjectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[subjectID]
	if !ok {
		return false, models.ErrNotFound
	}
	return acct.required, nil
}

func (f *fakeAccounts) SetPasswordChangeRequired(_ context.Context, subjectID string, required bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[subjectID]
	if !ok {
		return models.ErrNotFound
	}
	acct.required = required
	return nil
}

func (f *fakeAccounts) Exists(_ context.Context, subjectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[subjectID]
	return ok, nil
}

func (f *fakeAccounts) EmailOf(_ context.Context, subjectID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[subjectID]
	if !ok {
		return "", models.ErrNotFound
	}
	return acct.email, nil
}

func (f *fakeAccounts) EmailAvailable(_ context.Context, email, subjectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, acct := range f.accounts {
		if strings.EqualFold(acct.email, email) && id != subjectID {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeAccounts) UpdateEmail(_ context.Context, subjectID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[subjectID]
	if !ok {
		return models.ErrNotFound
	}
	acct.email = email
	return nil
}

// sentNotification is one call captured by recordingNotifier
type sentNotification struct {
	kind string
	to   string
	url  string
}

// recordingNotifier implements Notifier by capturing calls
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) record(kind, to, url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, to: to, url: url})
}

func (n *recordingNotifier) PasswordResetRequested(_ context.Context, email, resetURL string, _ time.Time) {
	n.record(kindPasswordReset, email, resetURL)
}

func (n *recordingNotifier) PasswordChanged(_ context.Context, email string) {
	n.record(kindPasswordChanged, email, "")
}

func (n *recordingNotifier) EmailChangeRequested(_ context.Context, newEmail, verifyURL string, _ time.Time) {
	n.record(kindEmailChange, newEmail, verifyURL)
}

func (n *recordingNotifier) EmailChanged(_ context.Context, oldEmail, _ string) {
	n.record(kindEmailChanged, oldEmail, "")
}

func (n *recordingNotifier) AccountLocked(_ context.Context, email string) {
	n.record(kindAccountLocked, email, "")
}

func (n *recordingNotifier) last() sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentNotification{}
	}
	return n.sent[len(n.sent)-1]
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

// tokenFromURL extracts the raw token from a notification link
func tokenFromURL(link string) string {
	_, token, _ := strings.Cut(link, "token=")
	return token
}

// MockMailSender implements MailSender for testing
type MockMailSender struct {
	SendFunc func(ctx context.Context, msg EmailMessage) error
}

func (m *MockMailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByUsernameFunc             func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc                func(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordFunc            func(ctx context.Context, username, passwordHash string) error
	SetPasswordChangeRequiredFunc func(ctx context.Context, username string, required bool) error
	UpdateEmailFunc               func(ctx context.Context, username, email string) error
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, username, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetPasswordChangeRequired(ctx context.Context, username string, required bool) error {
	if m.SetPasswordChangeRequiredFunc != nil {
		return m.SetPasswordChangeRequiredFunc(ctx, username, required)
	}
	return nil
}

func (m *MockUserRepository) UpdateEmail(ctx context.Context, username, email string) error {
	if m.UpdateEmailFunc != nil {
		return m.UpdateEmailFunc(ctx, username, email)
	}
	return nil
}

// MockLoginHistoryRepository implements LoginHistoryRepository for testing
type MockLoginHistoryRepository struct {
	RecordFunc     func(ctx context.Context, rec *models.LoginRecord) error
	ListRecentFunc func(ctx context.Context, subjectID string, limit int) ([]*models.LoginRecord, error)
}

func (m *MockLoginHistoryRepository) Record(ctx context.Context, rec *models.LoginRecord) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, rec)
	}
	return nil
}

func (m *MockLoginHistoryRepository) ListRecent(ctx context.Context, subjectID string, limit int) ([]*models.LoginRecord, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, subjectID, limit)
	}
	return nil, nil
}

// staticWeakSet is a fixed weak-password list
type staticWeakSet map[string]bool

func (s staticWeakSet) Contains(candidate string) bool {
	return s[strings.ToLower(candidate)]
}

func testPolicy() *policy.Chain {
	return policy.NewChain(policy.DefaultRules(policy.DefaultConfig(), staticWeakSet{"password123": true})...)
}

// NewTestUser returns an enabled user with the given password hash
func NewTestUser(username, email, passwordHash string) *models.User {
	return &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
