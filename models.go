package contacts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the account's lifecycle state, derived from the
// confirmed flag: pending until the verification email is confirmed,
// active afterwards.
type AccountStatus string

const (
	// AccountPending is the initial, unconfirmed state after signup.
	AccountPending AccountStatus = "pending"
	// AccountActive means the email was confirmed. There is no path back.
	AccountActive AccountStatus = "active"
)

// User is the account model. PasswordHash is an opaque bcrypt digest; the
// plaintext never reaches storage or logs.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	Confirmed      bool       `bun:"confirmed" json:"confirmed"`
	Avatar         string     `bun:"avatar" json:"avatar,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Status derives the lifecycle state from the confirmed flag.
func (u *User) Status() AccountStatus {
	if u != nil && u.Confirmed {
		return AccountActive
	}
	return AccountPending
}

// Contact is one entry in a user's contact book.
type Contact struct {
	bun.BaseModel  `bun:"table:contacts,alias:cnt"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email          string     `bun:"email" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	Birthday       *time.Time `bun:"birthday,nullzero" json:"birthday,omitempty"`
	AdditionalInfo string     `bun:"additional_info" json:"additional_info,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Owner          *User      `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NormalizeEmail lower-cases and trims an email so lookups and uniqueness
// behave case insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
