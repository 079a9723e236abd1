// Package accountdb provides the persistence layer for accounts, invites,
// reserved usernames, IP bans, VM configuration, server settings, and
// recording file metadata, implemented with gorm/sqlite.
package accountdb

import "time"

// Account is a registered CollabVM user.
type Account struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	Password    string    `gorm:"not null" json:"-"`
	IsAdmin     bool      `gorm:"default:false" json:"is_admin"`
	TOTPSecret  string    `json:"-"`
	TOTPEnabled bool      `gorm:"default:false" json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	BannedAt    *time.Time `json:"banned_at,omitempty"`
}

func (Account) TableName() string { return "accounts" }

// Invite is a single-use account registration code. Username is the
// account name it mints on redemption when the registrant supplies no
// username of their own; IsAdmin grants the resulting account admin tier.
type Invite struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Code      string     `gorm:"uniqueIndex;not null" json:"code"`
	Username  string     `json:"username"`
	IsAdmin   bool       `gorm:"default:false" json:"is_admin"`
	CreatedBy uint       `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	RedeemedBy *uint      `json:"redeemed_by,omitempty"`
}

func (Invite) TableName() string { return "invites" }

// ReservedUsername prevents guests from claiming a name reserved for an
// account holder.
type ReservedUsername struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	AccountID uint      `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ReservedUsername) TableName() string { return "reserved_usernames" }

// IPBan blocks new connections from an address.
type IPBan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IPBytes   []byte    `gorm:"uniqueIndex;not null" json:"-"`
	Reason    string    `json:"reason"`
	CreatedBy uint      `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (IPBan) TableName() string { return "ip_bans" }

// VMConfig is the persisted configuration for one managed VM, independent
// of its live vmregistry.AdminVm runtime state.
type VMConfig struct {
	ID             uint32 `gorm:"primaryKey" json:"id"`
	Description    string `json:"description"`
	AutoStart      bool   `gorm:"default:false" json:"auto_start"`
	DisallowGuests bool   `gorm:"default:false" json:"disallow_guests"`
	TurnTimeSec    int    `gorm:"default:60" json:"turn_time_sec"`
	CompositorURI  string `json:"compositor_uri"`
}

func (VMConfig) TableName() string { return "vm_configs" }

// ServerSetting is one persisted key/value row backing settings.Store's
// Persister interface; the tag is stored as its integer value so a
// settings.Tag addition never requires a migration.
type ServerSetting struct {
	Tag         int    `gorm:"primaryKey" json:"tag"`
	BoolValue   bool   `json:"bool_value"`
	IntValue    int64  `json:"int_value"`
	StringValue string `json:"string_value"`
}

func (ServerSetting) TableName() string { return "server_settings" }

// RecordingFile indexes one closed recording segment on disk so
// recording.FileIndex can locate the files covering a preview request
// without scanning the filesystem.
type RecordingFile struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	VMID      uint32 `gorm:"index" json:"vm_id"`
	Path      string `gorm:"not null" json:"path"`
	StartMS   int64  `json:"start_ms"`
	StopMS    int64  `json:"stop_ms"`
	HeaderLen int    `json:"header_len"`
}

func (RecordingFile) TableName() string { return "recording_files" }
