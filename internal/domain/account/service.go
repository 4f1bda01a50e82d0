package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/mail"
)

// Sentinel errors surfaced to users verbatim on the auth pages.
var (
	ErrBadLogin             = errors.New("Incorrect email or password")
	ErrPasswordsDontMatch   = errors.New("Passwords do not match")
	ErrUsernameRegistered   = errors.New("Username already registered")
	ErrEmailRegistered      = errors.New("Email already registered")
	ErrDoctorFieldsRequired = errors.New("License number and specialization are required for doctors")
	ErrBadRole              = errors.New("Invalid role selection")
	ErrTokenInvalid         = errors.New("Invalid or expired reset token")
	ErrUserMissing          = errors.New("User not found")
)

type Service struct {
	users   user.Repository
	tokens  Repository
	mailer  mail.Mailer
	tx      db.TxRunner
	log     zerolog.Logger
	baseURL string
}

func NewService(users user.Repository, tokens Repository, mailer mail.Mailer, tx db.TxRunner, log zerolog.Logger, baseURL string) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		mailer:  mailer,
		tx:      tx,
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Login resolves the identifier as an email first, then as a username, and
// verifies the password. Deactivated accounts still log in; the active
// check happens at the routing layer so they land on the notice page.
func (s *Service) Login(ctx context.Context, identifier, password string) (*user.User, error) {
	u, err := s.users.GetByEmail(ctx, identifier)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		u, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBadLogin
		}
		return nil, err
	}
	if !auth.CheckPassword(password, u.Password) {
		return nil, ErrBadLogin
	}
	return u, nil
}

// Registration is the public sign-up form payload.
type Registration struct {
	FName           string
	LName           string
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
	Gender          string
	BloodType       string
	Phone           string
	Address         string
	LicenseNumber   string
	Specialization  string
}

// Register creates a patient or doctor account. The username is the email
// local part; public registration cannot create admins.
func (s *Service) Register(ctx context.Context, in Registration) (*user.User, error) {
	if in.Role != user.RolePatient && in.Role != user.RoleDoctor {
		return nil, ErrBadRole
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordsDontMatch
	}

	username := in.Email
	if at := strings.Index(in.Email, "@"); at > 0 {
		username = in.Email[:at]
	}

	if taken, err := s.users.UsernameTaken(ctx, username, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameRegistered
	}
	if taken, err := s.users.EmailTaken(ctx, in.Email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailRegistered
	}
	if in.Role == user.RoleDoctor && (in.LicenseNumber == "" || in.Specialization == "") {
		return nil, ErrDoctorFieldsRequired
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		Username:  username,
		Password:  hash,
		FName:     in.FName,
		LName:     in.LName,
		Gender:    optional(in.Gender),
		Email:     in.Email,
		Role:      in.Role,
		BloodType: optional(in.BloodType),
		Phone:     optional(in.Phone),
		Address:   optional(in.Address),
		IsActive:  true,
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if in.Role != user.RoleDoctor {
			return nil
		}
		return s.users.UpsertDoctorInfo(ctx, &user.DoctorInfo{
			UserID:         u.ID,
			LicenseNumber:  in.LicenseNumber,
			Specialization: in.Specialization,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Account loads the authenticated user's row.
func (s *Service) Account(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserMissing
		}
		return nil, err
	}
	return u, nil
}

// RequestReset issues a reset token and mails the link. Unknown addresses
// return nil so the response never reveals whether an account exists.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	token, err := auth.GenerateResetToken()
	if err != nil {
		return err
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.tokens.DeleteUnusedTokens(ctx, u.ID); err != nil {
			return err
		}
		return s.tokens.CreateToken(ctx, &ResetToken{
			UserID:    u.ID,
			Token:     token,
			ExpiresAt: time.Now().Add(TokenTTL),
		})
	})
	if err != nil {
		return err
	}

	link := s.baseURL + "/auth/reset-password-confirm?token=" + token
	if err := s.mailer.Send(ctx, u.Email, "Password Reset Request", resetMailBody(u.FName, link)); err != nil {
		// The page response must stay generic, so delivery failures are
		// only logged.
		s.log.Error().Err(err).Int64("user_id", u.ID).Msg("password reset mail failed")
	}
	return nil
}

// ValidateToken checks a reset token before showing the confirm form.
func (s *Service) ValidateToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrTokenInvalid
	}
	if _, err := s.tokens.GetValidToken(ctx, token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenInvalid
		}
		return err
	}
	return nil
}

// ConfirmReset sets the new password and burns the token.
func (s *Service) ConfirmReset(ctx context.Context, token, newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordsDontMatch
	}
	if len(newPassword) < user.MinPasswordLength {
		return user.ErrPasswordTooShort
	}

	t, err := s.tokens.GetValidToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenInvalid
		}
		return err
	}
	u, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserMissing
		}
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
			return err
		}
		return s.tokens.MarkUsed(ctx, t.ID)
	})
}

// DeleteOwnAccount permanently removes the account and returns the display
// name for the farewell message. Related records go through the schema's
// cascades.
func (s *Service) DeleteOwnAccount(ctx context.Context, userID int64) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserMissing
		}
		return "", err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return "", err
	}
	return u.FullName(), nil
}

// CleanupReport summarizes one run of the retention job.
type CleanupReport struct {
	TokensPurged    int64
	AccountsDeleted int64
}

// Cleanup removes burnt reset tokens and accounts deactivated longer than
// the retention window.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (CleanupReport, error) {
	var report CleanupReport

	tokens, err := s.tokens.PurgeTokens(ctx)
	if err != nil {
		return report, err
	}
	report.TokensPurged = tokens

	accounts, err := s.tokens.PurgeDeactivated(ctx, time.Now().Add(-retention))
	if err != nil {
		return report, err
	}
	report.AccountsDeleted = accounts
	return report, nil
}

func resetMailBody(name, link string) string {
	return fmt.Sprintf(`<p>Hello %s,</p>
<p>We received a request to reset your password. The link below is valid for one hour:</p>
<p><a href="%s">%s</a></p>
<p>If you did not request this, you can ignore this message.</p>`, name, link, link)
}

// optional maps an empty form value to NULL.
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
