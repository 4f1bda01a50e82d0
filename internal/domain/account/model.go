// Package account implements the authentication surface and the account
// lifecycle around it: login, registration, password reset, deactivation
// notices and patient self-deletion.
package account

import "time"

// TokenTTL is how long a password-reset link stays valid.
const TokenTTL = time.Hour

// ResetToken is one row of password_reset_tokens. Used stays an int flag
// to match the historical schema.
type ResetToken struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      int       `db:"used"`
	CreatedAt time.Time `db:"created_at"`
}

// DeactivationNotice is the copy shown on the deactivated-account page.
// ContactSubject pre-fills the contact form's subject line.
type DeactivationNotice struct {
	Title          string
	Message        string
	ContactSubject string
}

// NoticeForRole returns the role-specific deactivation copy, falling back
// to a generic notice for anonymous visitors.
func NoticeForRole(role string) DeactivationNotice {
	switch role {
	case "doctor":
		return DeactivationNotice{
			Title:          "Account Deactivated",
			Message:        "Your doctor account has been deactivated by the administrator. You no longer have access to patient data, diagnosis tools, or test uploads.",
			ContactSubject: "Doctor Account Deactivation - Request for Information",
		}
	case "patient":
		return DeactivationNotice{
			Title:          "Account Deactivated",
			Message:        "Your patient account has been deactivated by the administrator. You no longer have access to test uploads, medical history, or reports.",
			ContactSubject: "Patient Account Deactivation - Request for Information",
		}
	case "admin":
		return DeactivationNotice{
			Title:          "Account Deactivated",
			Message:        "Your administrator account has been deactivated. Please contact the system administrator.",
			ContactSubject: "Admin Account Deactivation - Request for Information",
		}
	}
	return DeactivationNotice{
		Title:          "Account Deactivated",
		Message:        "Your account has been deactivated by the administrator.",
		ContactSubject: "Account Deactivation - Request for Information",
	}
}
