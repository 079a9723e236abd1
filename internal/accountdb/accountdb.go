package accountdb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"collabvm-server/internal/recording"
	"collabvm-server/internal/session"
	"collabvm-server/internal/settings"
	"collabvm-server/internal/totp"
	"collabvm-server/internal/wire"
)

// DB wraps a GORM database instance and provides every persistence
// operation the server needs: accounts, invites, reserved usernames, IP
// bans, VM configuration, server settings, and recording file metadata.
// Kept as a thin embedding of *gorm.DB.
type DB struct {
	*gorm.DB
}

// New opens (creating if absent) the sqlite database at dbPath and runs
// migrations for every model.
func New(dbPath string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&Account{}, &Invite{}, &ReservedUsername{}, &IPBan{},
		&VMConfig{}, &ServerSetting{}, &RecordingFile{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{DB: db}, nil
}

// --- accounts ---

// CreateAccount inserts a new account, hashing password before storage.
func (db *DB) CreateAccount(username, password string, isAdmin bool) (*Account, error) {
	hash, err := session.HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &Account{Username: username, Password: hash, IsAdmin: isAdmin}
	if err := db.Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccountByUsername looks up an account case-sensitively by username.
func (db *DB) GetAccountByUsername(username string) (*Account, error) {
	var account Account
	err := db.Where("username = ?", username).First(&account).Error
	return &account, err
}

// EnrollTOTP generates and persists a new (disabled until confirmed) TOTP
// secret for accountID, returning the secret for provisioning-QR display.
func (db *DB) EnrollTOTP(accountID uint) ([]byte, error) {
	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	err = db.Model(&Account{}).Where("id = ?", accountID).
		Updates(map[string]any{"totp_secret": totp.EncodeSecret(secret), "totp_enabled": false}).Error
	return secret, err
}

// ConfirmTOTP marks a pending secret as enabled after the account has
// proven possession with one valid code.
func (db *DB) ConfirmTOTP(accountID uint) error {
	return db.Model(&Account{}).Where("id = ?", accountID).Update("totp_enabled", true).Error
}

// VerifyLogin implements session.AccountVerifier.
func (db *DB) VerifyLogin(username, password string) (accountID uint, isAdmin bool, totpRequired bool, code wire.LoginResultCode) {
	account, err := db.GetAccountByUsername(username)
	if err != nil {
		return 0, false, false, wire.LoginInvalidUsername
	}
	if account.BannedAt != nil {
		return 0, false, false, wire.LoginBanned
	}
	if !session.VerifyPassword(password, account.Password) {
		return 0, false, false, wire.LoginInvalidPassword
	}
	now := time.Now()
	_ = db.Model(&Account{}).Where("id = ?", account.ID).Update("last_login_at", &now).Error
	return account.ID, account.IsAdmin, account.TOTPEnabled, wire.LoginOK
}

// VerifyTOTP implements session.AccountVerifier.
func (db *DB) VerifyTOTP(accountID uint, code string) bool {
	var account Account
	if err := db.First(&account, accountID).Error; err != nil || !account.TOTPEnabled {
		return false
	}
	secret, err := totp.DecodeSecret(account.TOTPSecret)
	if err != nil {
		return false
	}
	return totp.Validate(secret, code, time.Now(), 1)
}

// Register implements session.AccountVerifier: creates a new account,
// optionally redeeming an invite and/or enrolling a client-supplied TOTP
// secret in one step.
func (db *DB) Register(req wire.AccountRegistrationRequest) (uint, error) {
	username := req.Username
	isAdmin := false
	if req.InviteID != "" {
		var invite Invite
		if err := db.Where("code = ? AND redeemed_at IS NULL", req.InviteID).First(&invite).Error; err != nil {
			return 0, fmt.Errorf("accountdb: invalid or already-redeemed invite")
		}
		if username == "" {
			username = invite.Username
		}
		isAdmin = invite.IsAdmin
		defer func() {
			now := time.Now()
			db.Model(&invite).Updates(map[string]any{"redeemed_at": &now})
		}()
	}

	account, err := db.CreateAccount(username, req.Password, isAdmin)
	if err != nil {
		return 0, err
	}
	if req.TOTPKeyProvided {
		if err := db.Model(&Account{}).Where("id = ?", account.ID).
			Updates(map[string]any{"totp_secret": totp.EncodeSecret(req.TOTPKey), "totp_enabled": true}).Error; err != nil {
			return 0, err
		}
	}
	return account.ID, nil
}

// --- invites ---

// CreateInvite mints a new random invite code that, on redemption, creates
// an account named username (or lets the registrant choose, if username is
// empty) with the given admin tier. Implements session.AdminStore.
func (db *DB) CreateInvite(username string, isAdmin bool, createdBy uint) (code string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	invite := &Invite{Code: hex.EncodeToString(buf), Username: username, IsAdmin: isAdmin, CreatedBy: createdBy}
	if err := db.Create(invite).Error; err != nil {
		return "", err
	}
	return invite.Code, nil
}

// DeleteInvite removes an unredeemed invite by code.
func (db *DB) DeleteInvite(code string) error {
	return db.Where("code = ?", code).Delete(&Invite{}).Error
}

// --- reserved usernames ---

// ReserveUsername reserves username for accountID.
func (db *DB) ReserveUsername(username string, accountID uint) error {
	return db.Create(&ReservedUsername{Username: username, AccountID: accountID}).Error
}

// UnreserveUsername releases a previously reserved username.
func (db *DB) UnreserveUsername(username string) error {
	return db.Where("username = ?", username).Delete(&ReservedUsername{}).Error
}

// IsReserved reports whether username is currently reserved.
func (db *DB) IsReserved(username string) bool {
	var count int64
	db.Model(&ReservedUsername{}).Where("username = ?", username).Count(&count)
	return count > 0
}

// --- IP bans ---

// BanIP records a ban for ipBytes, attributed to createdBy.
func (db *DB) BanIP(ipBytes []byte, reason string, createdBy uint) error {
	return db.Create(&IPBan{IPBytes: ipBytes, Reason: reason, CreatedBy: createdBy}).Error
}

// IsBanned reports whether ipBytes currently has an active, unexpired ban.
func (db *DB) IsBanned(ipBytes []byte) bool {
	var ban IPBan
	err := db.Where("ip_bytes = ?", ipBytes).First(&ban).Error
	if err != nil {
		return false
	}
	return ban.ExpiresAt == nil || ban.ExpiresAt.After(time.Now())
}

// --- VM configuration ---

// UpsertVMConfig creates or replaces the persisted configuration for one
// VM id.
func (db *DB) UpsertVMConfig(cfg *VMConfig) error {
	return db.Save(cfg).Error
}

// CreateVMConfig inserts a new VM configuration with a database-assigned
// id, for admin create-vm requests that don't name an id of their own.
func (db *DB) CreateVMConfig(description string, turnTimeSec int, disallowGuests, autoStart bool) (*VMConfig, error) {
	cfg := &VMConfig{
		Description:    description,
		TurnTimeSec:    turnTimeSec,
		DisallowGuests: disallowGuests,
		AutoStart:      autoStart,
	}
	if err := db.Create(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetVMConfig retrieves the persisted configuration for id.
func (db *DB) GetVMConfig(id uint32) (*VMConfig, error) {
	var cfg VMConfig
	err := db.First(&cfg, id).Error
	return &cfg, err
}

// DeleteVMConfig removes the persisted configuration for id.
func (db *DB) DeleteVMConfig(id uint32) error {
	return db.Delete(&VMConfig{}, id).Error
}

// ListVMConfigs returns every persisted VM configuration.
func (db *DB) ListVMConfigs() ([]VMConfig, error) {
	var cfgs []VMConfig
	err := db.Find(&cfgs).Error
	return cfgs, err
}

// --- settings.Persister ---

// LoadSettings implements settings.Persister.
func (db *DB) LoadSettings() (settings.Snapshot, error) {
	var rows []ServerSetting
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil // settings.New falls back to Defaults()
	}
	snap := make(settings.Snapshot, len(rows))
	for _, r := range rows {
		snap[settings.Tag(r.Tag)] = settings.Value{Bool: r.BoolValue, Int: r.IntValue, String: r.StringValue}
	}
	return snap, nil
}

// SaveSettings implements settings.Persister: upserts only the changed
// tags, mirroring settings.Store.Update's delta-only persistence contract.
func (db *DB) SaveSettings(delta settings.Snapshot) error {
	for tag, v := range delta {
		// A raw upsert keeps tag 0 as written: gorm treats a zero integer
		// primary key as unset and would let sqlite assign a new one.
		err := db.Exec("INSERT INTO server_settings (tag, bool_value, int_value, string_value) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(tag) DO UPDATE SET bool_value = excluded.bool_value, int_value = excluded.int_value, string_value = excluded.string_value",
			int(tag), v.Bool, v.Int, v.String).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// --- recording.FileIndex ---

// RecordFile indexes a newly closed recording segment so preview requests
// can locate it later.
func (db *DB) RecordFile(vmID uint32, path string, startMS, stopMS int64, headerLen int) error {
	return db.Create(&RecordingFile{VMID: vmID, Path: path, StartMS: startMS, StopMS: stopMS, HeaderLen: headerLen}).Error
}

// FilesCovering implements recording.FileIndex.
func (db *DB) FilesCovering(vmID uint32, startMS, stopMS int64) ([]recording.StoredFile, error) {
	var rows []RecordingFile
	err := db.Where("vm_id = ? AND start_ms <= ? AND stop_ms >= ?", vmID, stopMS, startMS).
		Order("start_ms asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]recording.StoredFile, 0, len(rows))
	for _, r := range rows {
		header, herr := recording.ReadHeaderFromFile(r.Path, r.HeaderLen)
		if herr != nil {
			continue
		}
		out = append(out, recording.StoredFile{Path: r.Path, Header: header})
	}
	return out, nil
}
