package authgrid

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/authgrid/authgrid/internal/check"
	"github.com/authgrid/authgrid/password"
	"github.com/authgrid/authgrid/policy"
)

// memoryStore is an in-memory UserProvider + RecoveryTokenStore.
type memoryStore struct {
	mu     sync.Mutex
	users  map[string]User
	emails map[string]string
	grants map[string]RecoveryToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  map[string]User{},
		emails: map[string]string{},
		grants: map[string]RecoveryToken{},
	}
}

func (m *memoryStore) Create(_ context.Context, nu NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[nu.Email]; exists {
		return User{}, ErrAccountExists
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Roles:        nu.Roles,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[user.ID] = user
	m.emails[user.Email] = user.ID
	return user, nil
}

func (m *memoryStore) ByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryStore) ByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *memoryStore) mutate(id string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	user.UpdatedAt = time.Now()
	m.users[id] = user
	return nil
}

func (m *memoryStore) MarkVerified(_ context.Context, id string) error {
	return m.mutate(id, func(u *User) { u.Verified = true })
}

func (m *memoryStore) SetPasswordHash(_ context.Context, id, hash string) error {
	return m.mutate(id, func(u *User) { u.PasswordHash = hash })
}

func (m *memoryStore) SetRoles(_ context.Context, id string, roles policy.Roles) error {
	return m.mutate(id, func(u *User) { u.Roles = roles })
}

func (m *memoryStore) SetActive(_ context.Context, id string, active bool) error {
	return m.mutate(id, func(u *User) { u.Active = active })
}

func (m *memoryStore) Replace(_ context.Context, token RecoveryToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for value, grant := range m.grants {
		if grant.UserID == token.UserID {
			delete(m.grants, value)
		}
	}
	m.grants[token.Value] = token
	return nil
}

func (m *memoryStore) FindByValue(_ context.Context, value string) (RecoveryToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.grants[value]
	if !ok {
		return RecoveryToken{}, ErrInvalidOrExpiredToken
	}
	return grant, nil
}

func (m *memoryStore) DeleteForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for value, grant := range m.grants {
		if grant.UserID == userID {
			delete(m.grants, value)
		}
	}
	return nil
}

// captureNotifier records the last delivered code and recovery token
// per email.
type captureNotifier struct {
	mu     sync.Mutex
	codes  map[string]string
	tokens map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: map[string]string{}, tokens: map[string]string{}}
}

func (n *captureNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = code
	return nil
}

func (n *captureNotifier) SendRecoveryToken(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[email] = token
	return nil
}

func (n *captureNotifier) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

func (n *captureNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

type testRig struct {
	engine   *Engine
	store    *memoryStore
	notifier *captureNotifier
	redis    *miniredis.Miniredis
}

func testConfig(t *testing.T) Config {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Token.AccessTTL = time.Minute
	cfg.Token.RefreshTTL = time.Hour
	cfg.Token.AccessPrivateKey = priv
	cfg.Token.RefreshSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.CSRF.Secret = []byte("csrf-test-secret")
	cfg.OTP.Secret = []byte("otp-test-secret")
	// Floor-cost hashing keeps the suite fast.
	cfg.Password = password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
	}
	return cfg
}

func newTestRig(t *testing.T, mutate func(*Config)) *testRig {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMemoryStore()
	notifier := newCaptureNotifier()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(store).
		WithRecoveryStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testRig{engine: engine, store: store, notifier: notifier, redis: mr}
}

// signupAndLogin provisions a verified account and returns the user
// with a live session.
func (r *testRig) signupAndLogin(t *testing.T, email, pw string) (User, LoginResult) {
	t.Helper()
	ctx := context.Background()

	user, err := r.engine.Signup(ctx, SignupRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if err := r.engine.VerifyAccount(ctx, email, r.notifier.code(email)); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	result, err := r.engine.Login(ctx, email, pw)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return user, result
}

func TestLoginWritesCheckHashToCache(t *testing.T) {
	rig := newTestRig(t, nil)
	user, result := rig.signupAndLogin(t, "alice@example.com", "correct horse")

	_, checkValue, err := rig.engine.Tokens().VerifyRefresh(result.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh verify failed: %v", err)
	}

	rec, err := rig.engine.Cache().Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("cache get failed: %v", err)
	}
	if rec.Hash != check.Hash(checkValue) {
		t.Fatal("cache hash must be the hash of the refresh token's check value")
	}
	if !rec.Active || !rec.Roles.Contains(policy.RoleUser) {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRevalidateRotatesOutOldToken(t *testing.T) {
	rig := newTestRig(t, nil)
	_, first := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	second, err := rig.engine.Revalidate(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("revalidate failed: %v", err)
	}

	// The presented token died with the rotation.
	if _, err := rig.engine.Revalidate(ctx, first.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("rotated-away token must be rejected, got %v", err)
	}
	// The replacement lives.
	if _, err := rig.engine.Revalidate(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestLogoutKillsSession(t *testing.T) {
	rig := newTestRig(t, nil)
	_, result := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	if err := rig.engine.Logout(ctx, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := rig.engine.Revalidate(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("post-logout refresh must fail, got %v", err)
	}
	// Logout is idempotent at the cache level.
	if err := rig.engine.Logout(ctx, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("second logout failed: %v", err)
	}
}

func TestRevokeAccessDeactivatesAndInvalidates(t *testing.T) {
	rig := newTestRig(t, nil)
	user, result := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	admin := policy.Subject{ID: uuid.NewString(), Active: true, Roles: policy.Roles{policy.RoleAdmin}}
	if err := rig.engine.RevokeAccess(ctx, user.ID, admin); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	if _, err := rig.engine.Revalidate(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("revoked session must read invalid, got %v", err)
	}
	if _, err := rig.engine.Login(ctx, "alice@example.com", "correct horse"); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("deactivated login must fail, got %v", err)
	}
}

func TestRevokeAccessGuards(t *testing.T) {
	rig := newTestRig(t, nil)
	user, _ := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	self := policy.Subject{ID: user.ID, Active: true, Roles: user.Roles}
	if err := rig.engine.RevokeAccess(ctx, user.ID, self); !errors.Is(err, ErrImpossibleSelfAction) {
		t.Fatalf("self revoke must be rejected, got %v", err)
	}

	peer := policy.Subject{ID: uuid.NewString(), Active: true, Roles: policy.Roles{policy.RoleUser}}
	if err := rig.engine.RevokeAccess(ctx, user.ID, peer); !errors.Is(err, ErrInsufficientPrivilege) {
		t.Fatalf("unprivileged revoke must be rejected, got %v", err)
	}
}

func TestLoginGuardOrdering(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	if _, err := rig.engine.Login(ctx, "ghost@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown identity must read as invalid credentials, got %v", err)
	}

	user, err := rig.engine.Signup(ctx, SignupRequest{Email: "bob@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	// Wrong password on an unverified account: credential failure wins.
	if _, err := rig.engine.Login(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Right password, unverified.
	if _, err := rig.engine.Login(ctx, "bob@example.com", "hunter22"); !errors.Is(err, ErrPendingVerification) {
		t.Fatalf("expected ErrPendingVerification, got %v", err)
	}

	if err := rig.engine.VerifyAccount(ctx, "bob@example.com", rig.notifier.code("bob@example.com")); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := rig.store.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := rig.engine.Login(ctx, "bob@example.com", "hunter22"); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestVerifyAccountRejectsBadCodeAndReplay(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	if _, err := rig.engine.Signup(ctx, SignupRequest{Email: "carol@example.com", Password: "pw-carol-1"}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	if err := rig.engine.VerifyAccount(ctx, "carol@example.com", "000000"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("wrong code must be rejected, got %v", err)
	}

	code := rig.notifier.code("carol@example.com")
	if err := rig.engine.VerifyAccount(ctx, "carol@example.com", code); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := rig.engine.VerifyAccount(ctx, "carol@example.com", code); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("replayed verification must be loud, got %v", err)
	}
}

func TestVerifyAccountRequiresActiveKnownAccount(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	// Unknown identities read the same as a bad credential pair.
	if err := rig.engine.VerifyAccount(ctx, "ghost@example.com", "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown identity must read as invalid credentials, got %v", err)
	}

	user, err := rig.engine.Signup(ctx, SignupRequest{Email: "hank@example.com", Password: "pw-hank-1"})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	code := rig.notifier.code("hank@example.com")

	if err := rig.store.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if err := rig.engine.VerifyAccount(ctx, "hank@example.com", code); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deactivated account must not verify, got %v", err)
	}

	// Reactivated, the genuine code goes through.
	if err := rig.store.SetActive(ctx, user.ID, true); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if err := rig.engine.VerifyAccount(ctx, "hank@example.com", code); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestRevalidateRejectsUnverifiedAccount(t *testing.T) {
	rig := newTestRig(t, nil)
	user, result := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	// The storage contract permits an account to drop back to
	// unverified out of band; rotation must refuse it.
	if err := rig.store.mutate(user.ID, func(u *User) { u.Verified = false }); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if _, err := rig.engine.Revalidate(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrPendingVerification) {
		t.Fatalf("unverified account must not revalidate, got %v", err)
	}
}

func TestSignupRoleAssignment(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	// Self-service signup ignores requested roles entirely.
	user, err := rig.engine.Signup(ctx, SignupRequest{
		Email:    "eve@example.com",
		Password: "pw-eve-111",
		Roles:    policy.Roles{policy.RoleSysAdmin},
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if len(user.Roles) != 1 || user.Roles[0] != policy.RoleUser {
		t.Fatalf("self signup must get the default role, got %v", user.Roles)
	}

	// Operator-provisioned: admin requesting sys-admin gets it stripped.
	admin := policy.Subject{ID: uuid.NewString(), Active: true, Roles: policy.Roles{policy.RoleAdmin}}
	user, err = rig.engine.Signup(ctx, SignupRequest{
		Email:     "frank@example.com",
		Password:  "pw-frank-1",
		Roles:     policy.Roles{policy.RoleSysAdmin, policy.RoleAdmin},
		Principal: &admin,
	})
	if err != nil {
		t.Fatalf("provisioned signup failed: %v", err)
	}
	if user.Roles.Contains(policy.RoleSysAdmin) || !user.Roles.Contains(policy.RoleAdmin) {
		t.Fatalf("admin-provisioned roles must exclude sys-admin, got %v", user.Roles)
	}

	// A plain user cannot provision at all.
	regular := policy.Subject{ID: uuid.NewString(), Active: true, Roles: policy.Roles{policy.RoleUser}}
	_, err = rig.engine.Signup(ctx, SignupRequest{
		Email: "gina@example.com", Password: "pw-gina-1", Principal: &regular,
	})
	if !errors.Is(err, ErrInsufficientPrivilege) {
		t.Fatalf("expected ErrInsufficientPrivilege, got %v", err)
	}
}

func TestBootstrapSignup(t *testing.T) {
	rig := newTestRig(t, func(cfg *Config) {
		cfg.Signup.Bootstrap = true
	})

	user, err := rig.engine.Signup(context.Background(), SignupRequest{
		Email: "root@example.com", Password: "pw-root-1",
	})
	if err != nil {
		t.Fatalf("bootstrap signup failed: %v", err)
	}
	if !user.Roles.Contains(policy.RoleSysAdmin) {
		t.Fatalf("bootstrap signup must grant the bootstrap role, got %v", user.Roles)
	}
}

func TestDuplicateSignup(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	if _, err := rig.engine.Signup(ctx, SignupRequest{Email: "dup@example.com", Password: "pw-dup-11"}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	_, err := rig.engine.Signup(ctx, SignupRequest{Email: "dup@example.com", Password: "pw-dup-22"})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRecoveryAndReset(t *testing.T) {
	rig := newTestRig(t, nil)
	user, result := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	if err := rig.engine.RecoverCredentials(ctx, "alice@example.com"); err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	grant := rig.notifier.token("alice@example.com")
	if grant == "" {
		t.Fatal("recovery token must be delivered")
	}

	// Reusing the current password is rejected.
	if err := rig.engine.ResetPassword(ctx, grant, "correct horse"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}

	if err := rig.engine.ResetPassword(ctx, grant, "brand new phrase"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// Grant is single-use.
	if err := rig.engine.ResetPassword(ctx, grant, "another phrase"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("consumed grant must be dead, got %v", err)
	}
	// Live session died with the old credential.
	if _, err := rig.engine.Revalidate(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("session must not survive a reset, got %v", err)
	}
	// Old password is gone, new one works.
	if _, err := rig.engine.Login(ctx, "alice@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	if _, err := rig.engine.Login(ctx, "alice@example.com", "brand new phrase"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	_ = user
}

func TestRecoveryIsSilent(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	if err := rig.engine.RecoverCredentials(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown identity must recover silently, got %v", err)
	}
	if rig.notifier.token("nobody@example.com") != "" {
		t.Fatal("no token may be delivered for an unknown identity")
	}
}

func TestRecoveryRotatesGrant(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	if err := rig.engine.RecoverCredentials(ctx, "alice@example.com"); err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	first := rig.notifier.token("alice@example.com")

	if err := rig.engine.RecoverCredentials(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second recover failed: %v", err)
	}
	second := rig.notifier.token("alice@example.com")

	if first == second {
		t.Fatal("each recovery request must mint a fresh grant")
	}
	if err := rig.engine.ResetPassword(ctx, first, "whatever else"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("rotated-away grant must be dead, got %v", err)
	}
}

func TestUpdateUserRolesRefreshesCache(t *testing.T) {
	rig := newTestRig(t, nil)
	user, _ := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	sysAdmin := policy.Subject{ID: uuid.NewString(), Active: true, Roles: policy.Roles{policy.RoleSysAdmin}}
	if err := rig.engine.UpdateUserRoles(ctx, user.ID, policy.Roles{policy.RoleAdmin}, sysAdmin); err != nil {
		t.Fatalf("role update failed: %v", err)
	}

	rec, err := rig.engine.Cache().Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("cache get failed: %v", err)
	}
	if !rec.Roles.Contains(policy.RoleAdmin) || rec.Roles.Contains(policy.RoleUser) {
		t.Fatalf("session record must carry the new role set, got %v", rec.Roles)
	}
}

func TestUpdateUserRolesPrivilege(t *testing.T) {
	rig := newTestRig(t, nil)
	user, _ := rig.signupAndLogin(t, "alice@example.com", "correct horse")
	ctx := context.Background()

	admin := policy.Subject{ID: uuid.NewString(), Active: true, Roles: policy.Roles{policy.RoleAdmin}}
	err := rig.engine.UpdateUserRoles(ctx, user.ID, policy.Roles{policy.RoleSysAdmin}, admin)
	if !errors.Is(err, ErrInsufficientPrivilege) {
		t.Fatalf("admin granting sys-admin must be rejected, got %v", err)
	}
}

func TestCsrfRoundTrip(t *testing.T) {
	rig := newTestRig(t, nil)

	tok, err := rig.engine.CSRFToken()
	if err != nil {
		t.Fatalf("csrf generate failed: %v", err)
	}
	if err := rig.engine.VerifyCSRF(tok, tok); err != nil {
		t.Fatalf("csrf verify failed: %v", err)
	}
	if err := rig.engine.VerifyCSRF(tok, ""); !errors.Is(err, ErrCsrfMissing) {
		t.Fatalf("expected ErrCsrfMissing, got %v", err)
	}
}

func TestMetricsSnapshotCounts(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.signupAndLogin(t, "alice@example.com", "correct horse")

	snap := rig.engine.MetricsSnapshot()
	if snap["signup_success"] != 1 || snap["login_success"] != 1 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
}

func TestBuilderValidation(t *testing.T) {
	cfg := testConfig(t)
	store := newMemoryStore()

	if _, err := New().WithConfig(cfg).WithUserProvider(store).WithRecoveryStore(store).Build(); err == nil {
		t.Fatal("missing redis must be rejected")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithRecoveryStore(store).Build(); err == nil {
		t.Fatal("missing user provider must be rejected")
	}

	bad := cfg
	bad.CSRF.Secret = nil
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithUserProvider(store).WithRecoveryStore(store).Build(); err == nil {
		t.Fatal("missing csrf secret must be rejected")
	}

	builder := New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(store).WithRecoveryStore(store)
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	if _, err := builder.Build(); err == nil {
		t.Fatal("builder reuse must be rejected")
	}
}

func TestEngineNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
