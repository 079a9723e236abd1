package accountdb

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"collabvm-server/internal/recording"
	"collabvm-server/internal/settings"
	"collabvm-server/internal/totp"
	"collabvm-server/internal/wire"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&Account{}, &Invite{}, &ReservedUsername{}, &IPBan{},
		&VMConfig{}, &ServerSetting{}, &RecordingFile{},
	))
	return &DB{DB: gdb}
}

func TestCreateAccountAndGetByUsername(t *testing.T) {
	t.Run("should create an account with a bcrypt-hashed password", func(t *testing.T) {
		db := newTestDB(t)
		account, err := db.CreateAccount("alice", "hunter2", false)
		require.NoError(t, err)
		assert.NotEmpty(t, account.Password)
		assert.NotEqual(t, "hunter2", account.Password)

		fetched, err := db.GetAccountByUsername("alice")
		require.NoError(t, err)
		assert.Equal(t, account.ID, fetched.ID)
	})
}

func TestVerifyLogin(t *testing.T) {
	t.Run("should succeed for correct credentials", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.CreateAccount("bob", "correcthorse", true)
		require.NoError(t, err)

		id, isAdmin, totpRequired, code := db.VerifyLogin("bob", "correcthorse")
		assert.NotZero(t, id)
		assert.True(t, isAdmin)
		assert.False(t, totpRequired)
		assert.Equal(t, wire.LoginOK, code)
	})

	t.Run("should reject an unknown username", func(t *testing.T) {
		db := newTestDB(t)
		_, _, _, code := db.VerifyLogin("nobody", "whatever")
		assert.Equal(t, wire.LoginInvalidUsername, code)
	})

	t.Run("should reject the wrong password", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.CreateAccount("carol", "correctpass", false)
		require.NoError(t, err)

		_, _, _, code := db.VerifyLogin("carol", "wrongpass")
		assert.Equal(t, wire.LoginInvalidPassword, code)
	})

	t.Run("should reject a banned account", func(t *testing.T) {
		db := newTestDB(t)
		account, err := db.CreateAccount("dave", "somepass", false)
		require.NoError(t, err)

		now := time.Now()
		require.NoError(t, db.Model(&Account{}).Where("id = ?", account.ID).Update("banned_at", &now).Error)

		_, _, _, code := db.VerifyLogin("dave", "somepass")
		assert.Equal(t, wire.LoginBanned, code)
	})

	t.Run("should flag TOTP as required once enrolled and confirmed", func(t *testing.T) {
		db := newTestDB(t)
		account, err := db.CreateAccount("erin", "somepass", false)
		require.NoError(t, err)

		_, err = db.EnrollTOTP(account.ID)
		require.NoError(t, err)
		require.NoError(t, db.ConfirmTOTP(account.ID))

		_, _, totpRequired, code := db.VerifyLogin("erin", "somepass")
		assert.True(t, totpRequired)
		assert.Equal(t, wire.LoginOK, code)
	})
}

func TestVerifyTOTP(t *testing.T) {
	t.Run("should accept a code generated from the enrolled secret", func(t *testing.T) {
		db := newTestDB(t)
		account, err := db.CreateAccount("frank", "somepass", false)
		require.NoError(t, err)

		secret, err := db.EnrollTOTP(account.ID)
		require.NoError(t, err)
		require.NoError(t, db.ConfirmTOTP(account.ID))

		code := totp.Generate(secret, time.Now())
		assert.True(t, db.VerifyTOTP(account.ID, code))
	})

	t.Run("should reject a code for an account without confirmed TOTP", func(t *testing.T) {
		db := newTestDB(t)
		account, err := db.CreateAccount("gina", "somepass", false)
		require.NoError(t, err)

		assert.False(t, db.VerifyTOTP(account.ID, "123456"))
	})
}

func TestRegister(t *testing.T) {
	t.Run("should create an open registration account with no invite", func(t *testing.T) {
		db := newTestDB(t)
		id, err := db.Register(wire.AccountRegistrationRequest{Username: "harry", Password: "pw"})
		require.NoError(t, err)
		assert.NotZero(t, id)
	})

	t.Run("should redeem a valid invite", func(t *testing.T) {
		db := newTestDB(t)
		code, err := db.CreateInvite("", false, 1)
		require.NoError(t, err)

		_, err = db.Register(wire.AccountRegistrationRequest{Username: "iris", Password: "pw", InviteID: code})
		require.NoError(t, err)

		var reloaded Invite
		require.NoError(t, db.Where("code = ?", code).First(&reloaded).Error)
		assert.NotNil(t, reloaded.RedeemedAt)
	})

	t.Run("should reject an already-redeemed invite", func(t *testing.T) {
		db := newTestDB(t)
		code, err := db.CreateInvite("", false, 1)
		require.NoError(t, err)
		_, err = db.Register(wire.AccountRegistrationRequest{Username: "jack", Password: "pw", InviteID: code})
		require.NoError(t, err)

		_, err = db.Register(wire.AccountRegistrationRequest{Username: "jill", Password: "pw", InviteID: code})
		assert.Error(t, err)
	})

	t.Run("should fall back to the invite's attributed username when the registrant sends none", func(t *testing.T) {
		db := newTestDB(t)
		code, err := db.CreateInvite("alice", false, 1)
		require.NoError(t, err)

		id, err := db.Register(wire.AccountRegistrationRequest{Password: "pw", InviteID: code})
		require.NoError(t, err)

		var account Account
		require.NoError(t, db.First(&account, id).Error)
		assert.Equal(t, "alice", account.Username)
	})

	t.Run("should enroll a client-supplied TOTP secret when provided", func(t *testing.T) {
		db := newTestDB(t)
		secret, err := totp.GenerateSecret()
		require.NoError(t, err)

		id, err := db.Register(wire.AccountRegistrationRequest{
			Username: "kim", Password: "pw", TOTPKeyProvided: true, TOTPKey: secret,
		})
		require.NoError(t, err)

		code := totp.Generate(secret, time.Now())
		assert.True(t, db.VerifyTOTP(id, code))
	})
}

func TestReservedUsernames(t *testing.T) {
	t.Run("should track reservation state", func(t *testing.T) {
		db := newTestDB(t)
		assert.False(t, db.IsReserved("admin"))

		require.NoError(t, db.ReserveUsername("admin", 1))
		assert.True(t, db.IsReserved("admin"))

		require.NoError(t, db.UnreserveUsername("admin"))
		assert.False(t, db.IsReserved("admin"))
	})
}

func TestIPBans(t *testing.T) {
	t.Run("should report an unexpired ban as banned", func(t *testing.T) {
		db := newTestDB(t)
		ip := []byte{127, 0, 0, 1}
		require.NoError(t, db.BanIP(ip, "abuse", 1))
		assert.True(t, db.IsBanned(ip))
	})

	t.Run("should report an expired ban as not banned", func(t *testing.T) {
		db := newTestDB(t)
		ip := []byte{10, 0, 0, 1}
		require.NoError(t, db.Create(&IPBan{IPBytes: ip, Reason: "temp"}).Error)

		past := time.Now().Add(-time.Hour)
		require.NoError(t, db.Model(&IPBan{}).Where("ip_bytes = ?", ip).Update("expires_at", &past).Error)
		assert.False(t, db.IsBanned(ip))
	})

	t.Run("should report an unknown address as not banned", func(t *testing.T) {
		db := newTestDB(t)
		assert.False(t, db.IsBanned([]byte{8, 8, 8, 8}))
	})
}

func TestVMConfigCRUD(t *testing.T) {
	t.Run("should upsert, fetch, list, and delete a VM config", func(t *testing.T) {
		db := newTestDB(t)
		cfg := &VMConfig{ID: 1, Description: "test vm", AutoStart: true, TurnTimeSec: 30}
		require.NoError(t, db.UpsertVMConfig(cfg))

		fetched, err := db.GetVMConfig(1)
		require.NoError(t, err)
		assert.Equal(t, "test vm", fetched.Description)

		list, err := db.ListVMConfigs()
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, db.DeleteVMConfig(1))
		_, err = db.GetVMConfig(1)
		assert.Error(t, err)
	})
}

func TestSettingsPersister(t *testing.T) {
	t.Run("should round-trip a saved delta through LoadSettings", func(t *testing.T) {
		db := newTestDB(t)
		delta := settings.Snapshot{
			settings.TagCaptchaEnabled: {Bool: true},
			settings.TagMaxConnections: {Int: 42},
		}
		require.NoError(t, db.SaveSettings(delta))

		loaded, err := db.LoadSettings()
		require.NoError(t, err)
		assert.True(t, loaded[settings.TagCaptchaEnabled].Bool)
		assert.Equal(t, int64(42), loaded[settings.TagMaxConnections].Int)
	})

	t.Run("should return a nil snapshot when nothing has been persisted", func(t *testing.T) {
		db := newTestDB(t)
		loaded, err := db.LoadSettings()
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})
}

func TestFilesCovering(t *testing.T) {
	t.Run("should return files whose interval overlaps the request, with readable headers", func(t *testing.T) {
		db := newTestDB(t)
		dir := t.TempDir()

		header := &recording.FileHeader{VMID: 1, StartMS: 0, StopMS: 5000, KeyframeCount: 0, Keyframes: make([]recording.KeyframeEntry, 4)}
		path := dir + "/vm1.bin"
		require.NoError(t, writeTestHeaderFile(path, header))

		require.NoError(t, db.RecordFile(1, path, 0, 5000, header.Size()))
		require.NoError(t, db.RecordFile(1, "/nonexistent", 100000, 200000, header.Size()))

		files, err := db.FilesCovering(1, 1000, 2000)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, path, files[0].Path)
		assert.Equal(t, uint32(1), files[0].Header.VMID)
	})

	t.Run("should return no files outside the covered VM or interval", func(t *testing.T) {
		db := newTestDB(t)
		files, err := db.FilesCovering(2, 0, 1000)
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func writeTestHeaderFile(path string, h *recording.FileHeader) error {
	return os.WriteFile(path, h.MarshalBinary(), 0o644)
}
