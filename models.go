package vault

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminUsername is the only account name the system supports.
const AdminUsername = "admin"

// InviteStatus is an invite code lifecycle state
type InviteStatus = string

const (
	// InviteStatusActive means the code can still gate a provisioning request
	InviteStatusActive InviteStatus = "active"
	// InviteStatusUsed means the code already produced the admin credential
	InviteStatusUsed InviteStatus = "used"
	// InviteStatusExpired means the code aged past its expires_at
	InviteStatusExpired InviteStatus = "expired"
	// InviteStatusRevoked means an admin withdrew the code
	InviteStatusRevoked InviteStatus = "revoked"
)

// ValidInviteStatus reports whether s names a known lifecycle state.
func ValidInviteStatus(s string) bool {
	switch s {
	case InviteStatusActive, InviteStatusUsed, InviteStatusExpired, InviteStatusRevoked:
		return true
	}
	return false
}

// InviteCode gates first-time account provisioning. Rows are mutated only
// through status transitions and removed only by hard delete.
type InviteCode struct {
	bun.BaseModel `bun:"table:invite_codes,alias:inv"`
	ID            string       `bun:"id,pk" json:"id"`
	Code          string       `bun:"code,notnull,unique" json:"code"`
	Status        InviteStatus `bun:"status,notnull" json:"status"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expiresAt"`
}

// IsUsable reports whether the code can still gate provisioning. A stale
// active row past its expiry is unusable even before a cleanup pass flips it.
func (c *InviteCode) IsUsable(now time.Time) bool {
	if c == nil || c.Status != InviteStatusActive {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// NewInviteID derives the row identifier from the creation timestamp,
// matching the identifier scheme the client already knows.
func NewInviteID(now time.Time) string {
	return now.Format("20060102150405") + now.Format(".000000")[1:]
}

// AdminUser is the single admin credential record. The unique username
// column enforces the single-admin invariant at the storage layer.
type AdminUser struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Salt          string     `bun:"salt,notnull" json:"-"`
	InviteCode    string     `bun:"invite_code,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}

// VaultEntry is one stored password row. The password field is opaque
// ciphertext produced by the client; the backend stores and returns it as-is.
type VaultEntry struct {
	bun.BaseModel `bun:"table:passwords,alias:pwd"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"userId,omitempty"`
	Title         string     `bun:"title,notnull" json:"title"`
	Username      string     `bun:"username,notnull" json:"username"`
	Password      string     `bun:"password,notnull" json:"password"`
	URL           string     `bun:"url" json:"url"`
	Category      string     `bun:"category,notnull" json:"category"`
	Notes         string     `bun:"notes" json:"notes"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}
