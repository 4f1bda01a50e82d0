package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

// userRepoStub implements the slice of user.Repository the account service
// touches; the embedded interface panics on anything else.
type userRepoStub struct {
	user.Repository
	nextID int64
	users  map[int64]*user.User
	info   map[int64]*user.DoctorInfo
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{
		users: make(map[int64]*user.User),
		info:  make(map[int64]*user.DoctorInfo),
	}
}

func (s *userRepoStub) Create(_ context.Context, u *user.User) error {
	s.nextID++
	u.ID = s.nextID
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	return nil
}

func (s *userRepoStub) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (s *userRepoStub) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *userRepoStub) GetByUsername(_ context.Context, username string) (*user.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *userRepoStub) UsernameTaken(_ context.Context, username string, excludeID int64) (bool, error) {
	for _, u := range s.users {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *userRepoStub) EmailTaken(_ context.Context, email string, excludeID int64) (bool, error) {
	for _, u := range s.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *userRepoStub) UpsertDoctorInfo(_ context.Context, info *user.DoctorInfo) error {
	s.info[info.UserID] = info
	return nil
}

func (s *userRepoStub) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Password = hash
	return nil
}

func (s *userRepoStub) Delete(_ context.Context, id int64) error {
	delete(s.users, id)
	return nil
}

type tokenRepoStub struct {
	nextID int64
	tokens map[string]*ResetToken

	purgedTokens   int64
	purgedAccounts int64
}

func newTokenRepoStub() *tokenRepoStub {
	return &tokenRepoStub{tokens: make(map[string]*ResetToken)}
}

func (s *tokenRepoStub) CreateToken(_ context.Context, t *ResetToken) error {
	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = time.Now()
	s.tokens[t.Token] = t
	return nil
}

func (s *tokenRepoStub) GetValidToken(_ context.Context, token string) (*ResetToken, error) {
	t, ok := s.tokens[token]
	if !ok || t.Used != 0 || !t.ExpiresAt.After(time.Now()) {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (s *tokenRepoStub) DeleteUnusedTokens(_ context.Context, userID int64) error {
	for k, t := range s.tokens {
		if t.UserID == userID && t.Used == 0 {
			delete(s.tokens, k)
		}
	}
	return nil
}

func (s *tokenRepoStub) MarkUsed(_ context.Context, id int64) error {
	for _, t := range s.tokens {
		if t.ID == id {
			t.Used = 1
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (s *tokenRepoStub) PurgeTokens(_ context.Context) (int64, error) {
	return s.purgedTokens, nil
}

func (s *tokenRepoStub) PurgeDeactivated(_ context.Context, _ time.Time) (int64, error) {
	return s.purgedAccounts, nil
}

type mailerStub struct {
	to      string
	subject string
	body    string
	sends   int
}

func (m *mailerStub) Send(_ context.Context, to, subject, htmlBody string) error {
	m.to, m.subject, m.body = to, subject, htmlBody
	m.sends++
	return nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *userRepoStub, *tokenRepoStub, *mailerStub) {
	users := newUserRepoStub()
	tokens := newTokenRepoStub()
	mailer := &mailerStub{}
	svc := NewService(users, tokens, mailer, db.TxRunner(passthroughTx), zerolog.Nop(), "http://localhost:8000/")
	return svc, users, tokens, mailer
}

func seedUser(t *testing.T, users *userRepoStub, username, email, role, password string) *user.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &user.User{
		Username: username,
		Password: hash,
		FName:    "Test",
		LName:    "User",
		Email:    email,
		Role:     role,
		IsActive: true,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestLogin(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "john", "john@mail.test", user.RolePatient, "secret123")
	ctx := context.Background()

	u, err := svc.Login(ctx, "john@mail.test", "secret123")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if u.Username != "john" {
		t.Errorf("logged in as %q", u.Username)
	}

	if _, err := svc.Login(ctx, "john", "secret123"); err != nil {
		t.Fatalf("login by username: %v", err)
	}

	if _, err := svc.Login(ctx, "john", "wrong"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("wrong password: expected ErrBadLogin, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@mail.test", "secret123"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("unknown account: expected ErrBadLogin, got %v", err)
	}
}

func TestRegisterPatient(t *testing.T) {
	svc, users, _, _ := newTestService()

	u, err := svc.Register(context.Background(), Registration{
		FName: "Jane", LName: "Roe", Email: "jane.roe@mail.test",
		Password: "secret123", ConfirmPassword: "secret123",
		Role: user.RolePatient, Gender: "female", BloodType: "A+",
		Address: "Somewhere 1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Username != "jane.roe" {
		t.Errorf("username = %q, want email local part", u.Username)
	}
	if !u.IsActive {
		t.Error("new accounts start active")
	}
	if !auth.CheckPassword("secret123", users.users[u.ID].Password) {
		t.Error("password must be stored hashed and verifiable")
	}
	if len(users.info) != 0 {
		t.Error("patients must not get doctor info rows")
	}
}

func TestRegisterDoctor(t *testing.T) {
	svc, users, _, _ := newTestService()

	u, err := svc.Register(context.Background(), Registration{
		FName: "Lina", LName: "Hassan", Email: "lina@clinic.test",
		Password: "secret123", ConfirmPassword: "secret123",
		Role: user.RoleDoctor, Gender: "female", BloodType: "O-",
		Address: "Clinic 2", LicenseNumber: "LIC-7", Specialization: "Hematology",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := users.info[u.ID]
	if info == nil || info.LicenseNumber != "LIC-7" || info.Specialization != "Hematology" {
		t.Errorf("expected doctor info row, got %+v", info)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "taken", "taken@mail.test", user.RolePatient, "secret123")

	base := Registration{
		FName: "A", LName: "B", Password: "secret123", ConfirmPassword: "secret123",
		Role: user.RolePatient,
	}

	cases := []struct {
		name string
		mod  func(r *Registration)
		want error
	}{
		{"password mismatch", func(r *Registration) {
			r.Email = "new@mail.test"
			r.ConfirmPassword = "different"
		}, ErrPasswordsDontMatch},
		{"username collision", func(r *Registration) {
			r.Email = "taken@other.test"
		}, ErrUsernameRegistered},
		{"doctor without license", func(r *Registration) {
			r.Email = "doc@mail.test"
			r.Role = user.RoleDoctor
			r.Specialization = "Hematology"
		}, ErrDoctorFieldsRequired},
		{"forged role", func(r *Registration) {
			r.Email = "boss@mail.test"
			r.Role = "admin"
		}, ErrBadRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := base
			tc.mod(&r)
			if _, err := svc.Register(context.Background(), r); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "first", "dup@mail.test", user.RolePatient, "secret123")

	// Local part "dup" is free, so the email check is the one that trips.
	_, err := svc.Register(context.Background(), Registration{
		FName: "A", LName: "B", Email: "dup@mail.test",
		Password: "secret123", ConfirmPassword: "secret123", Role: user.RolePatient,
	})
	if !errors.Is(err, ErrEmailRegistered) {
		t.Errorf("expected ErrEmailRegistered, got %v", err)
	}
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	svc, _, tokens, mailer := newTestService()

	if err := svc.RequestReset(context.Background(), "ghost@mail.test"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if len(tokens.tokens) != 0 {
		t.Error("no token should be issued for unknown accounts")
	}
	if mailer.sends != 0 {
		t.Error("no mail should be sent for unknown accounts")
	}
}

func TestRequestReset(t *testing.T) {
	svc, users, tokens, mailer := newTestService()
	u := seedUser(t, users, "john", "john@mail.test", user.RolePatient, "secret123")
	ctx := context.Background()

	// A stale unused token gets replaced.
	stale := &ResetToken{UserID: u.ID, Token: "stale", ExpiresAt: time.Now().Add(time.Hour)}
	if err := tokens.CreateToken(ctx, stale); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	if err := svc.RequestReset(ctx, "john@mail.test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tokens.tokens["stale"]; ok {
		t.Error("previous unused token should be deleted")
	}
	if len(tokens.tokens) != 1 {
		t.Fatalf("expected exactly one live token, got %d", len(tokens.tokens))
	}

	var issued *ResetToken
	for _, t2 := range tokens.tokens {
		issued = t2
	}
	if until := time.Until(issued.ExpiresAt); until < 55*time.Minute || until > 65*time.Minute {
		t.Errorf("token expiry %v away, want about one hour", until)
	}
	if mailer.sends != 1 || mailer.to != "john@mail.test" {
		t.Errorf("expected one mail to the account, got %d to %q", mailer.sends, mailer.to)
	}
	if !strings.Contains(mailer.body, "/auth/reset-password-confirm?token="+issued.Token) {
		t.Error("mail body must carry the reset link")
	}
}

func TestConfirmReset(t *testing.T) {
	svc, users, tokens, _ := newTestService()
	u := seedUser(t, users, "john", "john@mail.test", user.RolePatient, "oldpassword")
	ctx := context.Background()

	live := &ResetToken{UserID: u.ID, Token: "live", ExpiresAt: time.Now().Add(time.Hour)}
	if err := tokens.CreateToken(ctx, live); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	err := svc.ConfirmReset(ctx, "live", "newpassword", "different")
	if !errors.Is(err, ErrPasswordsDontMatch) {
		t.Errorf("expected ErrPasswordsDontMatch, got %v", err)
	}
	err = svc.ConfirmReset(ctx, "live", "short", "short")
	if !errors.Is(err, user.ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
	err = svc.ConfirmReset(ctx, "bogus", "newpassword", "newpassword")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}

	if err := svc.ConfirmReset(ctx, "live", "newpassword", "newpassword"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !auth.CheckPassword("newpassword", users.users[u.ID].Password) {
		t.Error("password must verify after reset")
	}

	// The token is single-use.
	err = svc.ConfirmReset(ctx, "live", "anotherpass", "anotherpass")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("reused token: expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	svc, users, tokens, _ := newTestService()
	u := seedUser(t, users, "john", "john@mail.test", user.RolePatient, "secret123")
	ctx := context.Background()

	if err := svc.ValidateToken(ctx, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty token: expected ErrTokenInvalid, got %v", err)
	}

	expired := &ResetToken{UserID: u.ID, Token: "expired", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := tokens.CreateToken(ctx, expired); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := svc.ValidateToken(ctx, "expired"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expired token: expected ErrTokenInvalid, got %v", err)
	}

	live := &ResetToken{UserID: u.ID, Token: "live", ExpiresAt: time.Now().Add(time.Hour)}
	if err := tokens.CreateToken(ctx, live); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := svc.ValidateToken(ctx, "live"); err != nil {
		t.Errorf("live token: unexpected error %v", err)
	}
}

func TestDeleteOwnAccount(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "john", "john@mail.test", user.RolePatient, "secret123")

	name, err := svc.DeleteOwnAccount(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Test User" {
		t.Errorf("name = %q", name)
	}
	if _, ok := users.users[u.ID]; ok {
		t.Error("account should be gone")
	}

	if _, err := svc.DeleteOwnAccount(context.Background(), u.ID); !errors.Is(err, ErrUserMissing) {
		t.Errorf("expected ErrUserMissing, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	tokens.purgedTokens = 4
	tokens.purgedAccounts = 2

	report, err := svc.Cleanup(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TokensPurged != 4 || report.AccountsDeleted != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestNoticeForRole(t *testing.T) {
	if n := NoticeForRole("doctor"); !strings.Contains(n.Message, "doctor account") {
		t.Errorf("doctor notice: %q", n.Message)
	}
	if n := NoticeForRole(""); n.Message != "Your account has been deactivated by the administrator." {
		t.Errorf("fallback notice: %q", n.Message)
	}
	if n := NoticeForRole("patient"); n.ContactSubject != "Patient Account Deactivation - Request for Information" {
		t.Errorf("patient subject: %q", n.ContactSubject)
	}
}
