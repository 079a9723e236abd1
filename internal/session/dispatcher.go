package session

import (
	"time"

	"collabvm-server/internal/captcha"
	"collabvm-server/internal/channel"
	"collabvm-server/internal/guard"
	"collabvm-server/internal/metrics"
	"collabvm-server/internal/recording"
	"collabvm-server/internal/registry"
	"collabvm-server/internal/screenshot"
	"collabvm-server/internal/settings"
	"collabvm-server/internal/turn"
	"collabvm-server/internal/vmregistry"
	"collabvm-server/internal/wire"
)

// ChatRateInterval, LoginRateInterval, and UsernameChangeRateInterval are
// the default per-connection rate limits applied before
// AllowChat/AllowLoginAttempt/AllowUsernameChange gate a request.
const (
	ChatRateInterval           = 500 * time.Millisecond
	LoginRateInterval          = 2 * time.Second
	UsernameChangeRateInterval = 5 * time.Second
)

// ChannelLookup resolves a channel id to the guard.Guard owning it. Every
// mutation of a channel.Channel — including its embedded turn.Controller —
// happens by dispatching into this guard, never by touching the channel
// directly.
type ChannelLookup func(id uint32) (*guard.Guard[*channel.Channel], bool)

// AccountVerifier is the narrow slice of the out-of-scope database
// collaborator that login/registration needs.
type AccountVerifier interface {
	// VerifyLogin checks username/password and reports the account id,
	// admin flag, whether TOTP is required, and the outcome code.
	VerifyLogin(username, password string) (accountID uint, isAdmin bool, totpRequired bool, code wire.LoginResultCode)
	// VerifyTOTP checks a submitted TOTP code against the account's
	// enrolled secret.
	VerifyTOTP(accountID uint, code string) bool
	// Register creates a new account, honoring an optional invite id and
	// optional TOTP enrollment. Returns the new account id.
	Register(req wire.AccountRegistrationRequest) (accountID uint, err error)
}

// AdminStore is the narrow slice of the database collaborator that the
// admin invite/reservation/ban commands need. Concretely satisfied by
// internal/accountdb.DB.
type AdminStore interface {
	// CreateInvite mints a new invite code, optionally pre-attributing a
	// username and admin tier to whoever redeems it.
	CreateInvite(username string, isAdmin bool, createdBy uint) (code string, err error)
	// DeleteInvite revokes an unredeemed invite by code.
	DeleteInvite(code string) error
	// ReserveUsername reserves username for accountID, blocking its use by
	// guests and other accounts.
	ReserveUsername(username string, accountID uint) error
	// UnreserveUsername releases a previously reserved username.
	UnreserveUsername(username string) error
	// BanIP records a persistent ban for ipBytes.
	BanIP(ipBytes []byte, reason string, createdBy uint) error
}

// VMManager is the narrow slice of the composition root that the admin VM
// CRUD commands need. Concretely satisfied by internal/facade.Server.
type VMManager interface {
	// CreateManagedVM provisions a new VM from cfg (cfg.ID is ignored) and
	// returns its assigned id.
	CreateManagedVM(cfg wire.VMConfigDetail) (id uint32, err error)
	// ReadManagedVM returns the current persisted configuration for id.
	ReadManagedVM(id uint32) (wire.VMConfigDetail, bool)
	// UpdateManagedVM replaces the persisted configuration for cfg.ID.
	UpdateManagedVM(cfg wire.VMConfigDetail) error
	// DeleteManagedVM tears a VM down entirely.
	DeleteManagedVM(id uint32) error
	// SetVMsRunning starts or stops every VM named in ids.
	SetVMsRunning(ids []uint32, running bool)
	// RestartVMs stops then starts every VM named in ids.
	RestartVMs(ids []uint32)
}

// Dispatcher routes every decoded wire.Message to its owning collaborator.
// It holds no channel/VM state itself — every mutable resource it touches
// is reached through a Guard or through a collaborator (settings.Store,
// registry.*) that is already internally synchronized.
type Dispatcher struct {
	Channels    ChannelLookup
	VMRegistry  *guard.Guard[*vmregistry.Registry]
	Settings    *settings.Store
	Sessions    *registry.SessionRegistry
	Guests      *registry.GuestTable
	PerIPs      *registry.PerIPTable
	Tokens      *TokenManager
	Accounts    AccountVerifier
	Captcha     captcha.Verifier
	Now         func() time.Time

	// Admin and VMs back the admin-only invite/reservation/ban and VM CRUD
	// commands. Left nil, those handlers are no-ops (e.g. in tests that
	// don't exercise the admin surface).
	Admin AdminStore
	VMs   VMManager

	// RunBanCommand runs the configured OS-level ban command after a ban is
	// persisted (e.g. an iptables/nftables invocation). Nil disables it.
	RunBanCommand func(ipBytes []byte, reason string)
	// CloseConn forcibly closes one connection's transport (kick-user).
	CloseConn func(conn turn.ConnID)
	// SetCaptchaRequired flags one connection as needing to solve a captcha
	// before its next chat message is honored (admin send-captcha).
	SetCaptchaRequired func(conn turn.ConnID)
	// GetConn resolves a raw connection id to its live Conn, used to open a
	// new private chat with an arbitrary peer by id.
	GetConn func(conn turn.ConnID) (*Conn, bool)

	// SendTo delivers a raw frame to one specific connection (used for
	// direct replies, as opposed to Channel.Broadcast's fan-out). Wired by
	// the facade to reach into the connection registry the transport layer
	// owns.
	SendTo func(conn turn.ConnID, frame []byte)

	// RecordingIndex locates closed recording files for the preview/playback
	// request handler. Nil disables the handler entirely (e.g. in tests that
	// don't exercise recordings).
	RecordingIndex recording.FileIndex
	// NewPlaybackCompositor builds a fresh compositor for one preview
	// request's replay. The compositor itself is out of scope here — only
	// its interface is depended on.
	NewPlaybackCompositor func() screenshot.PlaybackCompositor
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Handle routes msg, sent by conn, to its handler. Unrecognized message
// types are silently ignored (a client sending a server-only tag is not an
// error worth tearing the connection down for).
func (d *Dispatcher) Handle(c *Conn, msg wire.Message) {
	switch m := msg.(type) {
	case wire.ConnectToChannel:
		d.handleConnectToChannel(c, m)
	case wire.ChatMessage:
		d.handleChatMessage(c, m)
	case wire.ChangeUsername:
		d.handleChangeUsername(c, m)
	case wire.TurnRequest:
		d.withChannel(c, func(ch *channel.Channel) { ch.Turn.RequestTurn(c.ID) })
	case wire.EndTurn:
		d.handleEndTurn(c)
	case wire.PauseTurn:
		if c.Tier == wire.TierAdmin {
			d.withChannel(c, func(ch *channel.Channel) { ch.Turn.PauseTurnTimer() })
		}
	case wire.ResumeTurn:
		if c.Tier == wire.TierAdmin {
			d.withChannel(c, func(ch *channel.Channel) { ch.Turn.ResumeTurnTimer() })
		}
	case wire.Vote:
		d.handleVote(c, m)
	case wire.VMListRequest:
		d.handleVMListRequest(c)
	case wire.GuacInstr:
		d.handleGuacInstr(c, m)
	case wire.LoginRequest:
		d.handleLoginRequest(c, m)
	case wire.TwoFactorResponse:
		d.handleTwoFactorResponse(c, m)
	case wire.AccountRegistrationRequest:
		d.handleAccountRegistration(c, m)
	case wire.RecordingPreviewRequest:
		d.handleRecordingPreviewRequest(c, m)
	case wire.CaptchaCompleted:
		d.handleCaptchaCompleted(c, m)
	case wire.ServerConfigRequest:
		d.handleServerConfigRequest(c)
	case wire.ServerConfigModifications:
		d.handleServerConfigModifications(c, m)
	case wire.CreateVM:
		d.handleCreateVM(c, m)
	case wire.ReadVM:
		d.handleReadVM(c, m)
	case wire.UpdateVMConfig:
		d.handleUpdateVMConfig(c, m)
	case wire.DeleteVM:
		d.handleDeleteVM(c, m)
	case wire.StartVMs:
		d.handleStartVMs(c, m)
	case wire.StopVMs:
		d.handleStopVMs(c, m)
	case wire.RestartVMs:
		d.handleRestartVMs(c, m)
	case wire.CreateInvite:
		d.handleCreateInvite(c, m)
	case wire.DeleteInvite:
		d.handleDeleteInvite(c, m)
	case wire.ReserveUsername:
		d.handleReserveUsername(c, m)
	case wire.UnreserveUsername:
		d.handleUnreserveUsername(c, m)
	case wire.BanIP:
		d.handleBanIP(c, m)
	case wire.SendCaptcha:
		d.handleSendCaptcha(c, m)
	case wire.KickUser:
		d.handleKickUser(c, m)
	}
}

// withChannel dispatches fn against c's current channel, if it has joined
// one. A no-op otherwise.
func (d *Dispatcher) withChannel(c *Conn, fn func(*channel.Channel)) {
	if !c.HasJoinedVM {
		return
	}
	g, ok := d.Channels(c.ChannelID)
	if !ok {
		return
	}
	g.Dispatch(fn)
}

func (d *Dispatcher) handleConnectToChannel(c *Conn, m wire.ConnectToChannel) {
	g, ok := d.Channels(m.ChannelID)
	if !ok {
		return
	}

	if c.HasJoinedVM && c.ChannelID != m.ChannelID {
		if old, ok := d.Channels(c.ChannelID); ok {
			old.Dispatch(func(ch *channel.Channel) { ch.RemoveUser(c.ID) })
		}
		c.HasJoinedVM = false
	}

	if c.Username == "" {
		if name, err := d.Guests.AllocateGuestName(c.ID); err == nil {
			c.Username = name
		}
	}

	captchaRequired := d.Settings.Get(settings.TagCaptchaEnabled).Bool &&
		d.Settings.Get(settings.TagCaptchaRequiredByDefault).Bool &&
		!c.CaptchaVerified
	c.CaptchaRequired = captchaRequired

	g.DispatchSync(func(ch *channel.Channel) {
		err := ch.AddUser(c.ID, channel.UserData{
			Username: c.Username,
			Tier:     c.Tier,
			IPBytes:  []byte(c.IP),
		})
		if err != nil {
			return
		}
		c.ChannelID = m.ChannelID
		c.HasJoinedVM = true

		resp := wire.ConnectResponse{
			Username:        c.Username,
			CaptchaRequired: captchaRequired,
			History:         ch.Chat.History(),
		}
		d.SendTo(c.ID, wire.EncodeMessage(resp))
	})
}

// handleChatMessage routes m to whichever destination m.DestKind names:
// the global/VM channel, an already-open private chat, or a brand-new
// private chat with an arbitrary peer connection.
func (d *Dispatcher) handleChatMessage(c *Conn, m wire.ChatMessage) {
	if !c.AllowChat(d.now(), ChatRateInterval) {
		metrics.ChatRateLimitedTotal.Inc()
		return
	}
	if c.CaptchaRequired {
		return
	}

	switch m.DestKind {
	case wire.ChatDestPrivate:
		d.routePrivateChat(c, m)
	case wire.ChatDestNewPrivate:
		d.routeNewPrivateChat(c, m)
	default:
		d.routeChannelChat(c, m)
	}
}

func (d *Dispatcher) routeChannelChat(c *Conn, m wire.ChatMessage) {
	if !c.HasJoinedVM {
		return
	}
	g, ok := d.Channels(m.Destination)
	if !ok {
		return
	}
	g.Dispatch(func(ch *channel.Channel) {
		if _, member := ch.GetUserData(c.ID); !member {
			return
		}
		recorded := ch.Chat.AddUserMessage(m.Destination, c.Username, c.Tier, m.Text)
		frame := wire.EncodeMessage(recorded)
		ch.BroadcastMessage(frame)
		d.recordFrame(m.Destination, recording.KindOther, frame)
		metrics.ChatMessagesTotal.Inc()
	})
}

// routePrivateChat forwards m into an already-open private chat, addressed
// by the sender's own local chat-id for that room.
func (d *Dispatcher) routePrivateChat(c *Conn, m wire.ChatMessage) {
	pc, ok := c.PrivateChat(m.Destination)
	if !ok {
		return
	}
	recorded := wire.ChatMessage{
		DestKind:    wire.ChatDestPrivate,
		Destination: pc.MirrorID,
		Sender:      c.Username,
		Tier:        c.Tier,
		Text:        m.Text,
		TimestampMS: d.now().UnixMilli(),
	}
	d.SendTo(pc.Peer, wire.EncodeMessage(recorded))

	echo := recorded
	echo.Destination = m.Destination
	d.SendTo(c.ID, wire.EncodeMessage(echo))
	metrics.ChatMessagesTotal.Inc()
}

// routeNewPrivateChat opens a private chat with the peer connection named
// by m.Destination (a raw connection id) and delivers the first message
// into it.
func (d *Dispatcher) routeNewPrivateChat(c *Conn, m wire.ChatMessage) {
	if d.GetConn == nil {
		return
	}
	peerID := turn.ConnID(m.Destination)
	peer, ok := d.GetConn(peerID)
	if !ok {
		return
	}
	localID, ok := c.OpenPrivateChat(peerID)
	if !ok {
		return
	}
	peerLocalID, ok := peer.OpenPrivateChat(c.ID)
	if !ok {
		return
	}
	c.SetPrivateChatMirror(localID, peerLocalID)
	peer.SetPrivateChatMirror(peerLocalID, localID)

	recorded := wire.ChatMessage{
		DestKind:    wire.ChatDestPrivate,
		Destination: peerLocalID,
		Sender:      c.Username,
		Tier:        c.Tier,
		Text:        m.Text,
		TimestampMS: d.now().UnixMilli(),
	}
	d.SendTo(peerID, wire.EncodeMessage(recorded))

	echo := recorded
	echo.Destination = localID
	d.SendTo(c.ID, wire.EncodeMessage(echo))
	metrics.ChatMessagesTotal.Inc()
}

// recordFrame hands frame to vmID's recording.Controller, if one exists and
// is currently capturing. A no-op for the global channel (id 0), which has
// no owning VM to record.
func (d *Dispatcher) recordFrame(vmID uint32, kind recording.InstrKind, frame []byte) {
	if vmID == 0 || d.VMRegistry == nil {
		return
	}
	d.VMRegistry.Dispatch(func(r *vmregistry.Registry) {
		vm, ok := r.GetVM(vmID)
		if !ok || vm.Recorder == nil || !vm.Recorder.IsRecording() {
			return
		}
		vm.Recorder.WriteMessage(kind, d.now().UnixMilli(), frame)
	})
}

// handleCaptchaCompleted verifies m.Token against d.Captcha and, on success,
// marks c as having satisfied the captcha requirement for the rest of its
// connection lifetime. A nil Captcha (e.g. in tests that don't exercise the
// captcha path) leaves c unverified.
func (d *Dispatcher) handleCaptchaCompleted(c *Conn, m wire.CaptchaCompleted) {
	if d.Captcha == nil {
		return
	}
	if d.Captcha.Verify(m.Token, c.IP) {
		c.CaptchaVerified = true
		c.CaptchaRequired = false
	}
}

// handleChangeUsername honors a self-service rename, subject to four
// preconditions: captcha (if required) must already be satisfied, the
// connection must not be logged into an account (accounts keep their
// registered name), the per-connection rate limit must allow it, and the
// requested name must pass ValidateUsername before the guest table is even
// consulted for a collision.
func (d *Dispatcher) handleChangeUsername(c *Conn, m wire.ChangeUsername) {
	if c.CaptchaRequired {
		return
	}
	if c.AccountID != 0 {
		return
	}
	if !c.AllowUsernameChange(d.now(), UsernameChangeRateInterval) {
		return
	}
	if !ValidateUsername(m.NewUsername) {
		d.SendTo(c.ID, wire.EncodeMessage(wire.UsernameTaken{}))
		return
	}
	if !d.Guests.TryInsert(m.NewUsername, c.ID) {
		d.SendTo(c.ID, wire.EncodeMessage(wire.UsernameTaken{}))
		return
	}
	old := c.Username
	if old != "" {
		d.Guests.Remove(old, c.ID)
	}
	c.Username = m.NewUsername

	d.withChannel(c, func(ch *channel.Channel) {
		if data, ok := ch.GetUserData(c.ID); ok {
			data.Username = m.NewUsername
			_ = ch.AddUser(c.ID, data)
		}
		ch.BroadcastMessage(wire.EncodeMessage(wire.UsernameChanged{OldUsername: old, NewUsername: m.NewUsername}))
	})
}

func (d *Dispatcher) handleEndTurn(c *Conn) {
	d.withChannel(c, func(ch *channel.Channel) {
		if c.Tier == wire.TierAdmin {
			ch.Turn.EndWhoeverHolds()
		} else {
			ch.Turn.EndCurrentTurn(c.ID)
		}
	})
}

func (d *Dispatcher) handleVote(c *Conn, m wire.Vote) {
	d.withChannel(c, func(ch *channel.Channel) {
		ch.CastVote(c.ID, m.Yes)
	})
}

// handleVMListRequest subscribes c to the live public VM list and sends the
// current snapshot plus one thumbnail per publicly-listed VM immediately,
// rather than waiting for the next periodic refresh to reach it.
func (d *Dispatcher) handleVMListRequest(c *Conn) {
	d.VMRegistry.Dispatch(func(r *vmregistry.Registry) {
		r.SubscribeVMList(c.ID)
		d.SendTo(c.ID, r.PublicList.GetMessage())
		for _, vm := range r.AllVMs() {
			if !vm.HasVMInfo {
				continue
			}
			if png := vm.Thumbnail(); png != nil {
				d.SendTo(c.ID, wire.EncodeMessage(wire.VMThumbnail{VMID: vm.ID, PNG: png}))
			}
		}
	})
}

func (d *Dispatcher) handleGuacInstr(c *Conn, m wire.GuacInstr) {
	if !c.HasJoinedVM {
		return
	}
	g, ok := d.Channels(c.ChannelID)
	if !ok {
		return
	}
	g.Dispatch(func(ch *channel.Channel) {
		holder, hasHolder := ch.Turn.Holder()
		if (!hasHolder || holder != c.ID) && c.Tier != wire.TierAdmin {
			return
		}
		// The compositor client (out of scope here) consumes m.Data
		// directly; this package only enforces turn ownership before
		// forwarding and recording it.
		d.recordFrame(c.ChannelID, recording.KindInput, wire.EncodeMessage(m))
	})
}

func (d *Dispatcher) handleLoginRequest(c *Conn, m wire.LoginRequest) {
	if !c.AllowLoginAttempt(d.now(), LoginRateInterval) {
		return
	}
	accountID, isAdmin, totpRequired, code := d.Accounts.VerifyLogin(m.Username, m.Password)
	if code != wire.LoginOK {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultLabel(code)).Inc()
		d.SendTo(c.ID, wire.EncodeMessage(wire.LoginResponse{Result: code}))
		return
	}
	if totpRequired {
		c.AccountID = accountID
		d.SendTo(c.ID, wire.EncodeMessage(wire.LoginResponse{Result: wire.LoginTOTPRequired}))
		return
	}
	metrics.LoginAttemptsTotal.WithLabelValues("ok").Inc()
	d.completeLogin(c, accountID, m.Username, isAdmin)
}

func (d *Dispatcher) handleTwoFactorResponse(c *Conn, m wire.TwoFactorResponse) {
	if c.AccountID == 0 {
		return
	}
	if !d.Accounts.VerifyTOTP(c.AccountID, m.Code) {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultLabel(wire.LoginInvalidPassword)).Inc()
		d.SendTo(c.ID, wire.EncodeMessage(wire.LoginResponse{Result: wire.LoginInvalidPassword}))
		return
	}
	metrics.LoginAttemptsTotal.WithLabelValues("ok").Inc()
	d.completeLogin(c, c.AccountID, c.Username, c.Tier == wire.TierAdmin)
}

func loginResultLabel(code wire.LoginResultCode) string {
	switch code {
	case wire.LoginOK:
		return "ok"
	case wire.LoginInvalidPassword:
		return "invalid_password"
	case wire.LoginInvalidUsername:
		return "invalid_username"
	case wire.LoginTOTPRequired:
		return "totp_required"
	case wire.LoginBanned:
		return "banned"
	default:
		return "unknown"
	}
}

func (d *Dispatcher) completeLogin(c *Conn, accountID uint, username string, isAdmin bool) {
	c.AccountID = accountID
	c.Username = username
	if isAdmin {
		c.Tier = wire.TierAdmin
	} else {
		c.Tier = wire.TierRegular
	}

	token, err := d.Tokens.GenerateToken(accountID, username, isAdmin)
	if err != nil {
		d.SendTo(c.ID, wire.EncodeMessage(wire.LoginResponse{Result: wire.LoginInvalidUsername}))
		return
	}
	c.SessionToken = token

	if prev, had := d.Sessions.Put(token, c.ID); had && prev != c.ID {
		d.SendTo(prev, wire.EncodeMessage(wire.SessionInvalidated{}))
	}

	d.SendTo(c.ID, wire.EncodeMessage(wire.LoginResponse{Result: wire.LoginOK, Username: username, IsAdmin: isAdmin}))
}

func (d *Dispatcher) handleAccountRegistration(c *Conn, m wire.AccountRegistrationRequest) {
	if !d.Settings.Get(settings.TagAllowAccountRegistration).Bool {
		return
	}
	accountID, err := d.Accounts.Register(m)
	if err != nil {
		d.SendTo(c.ID, wire.EncodeMessage(wire.LoginResponse{Result: wire.LoginInvalidUsername}))
		return
	}
	d.completeLogin(c, accountID, m.Username, false)
}

// handleRecordingPreviewRequest streams a thumbnail sequence (and a
// terminal RecordingPlaybackResult) back to c, replaying whichever stored
// recording files cover the requested range. Runs off the calling
// goroutine since it does file I/O and can take longer than a single
// dispatch tick should block for; SendTo is safe to call concurrently by
// construction.
func (d *Dispatcher) handleRecordingPreviewRequest(c *Conn, m wire.RecordingPreviewRequest) {
	if c.Tier != wire.TierAdmin {
		return
	}
	if d.RecordingIndex == nil || d.NewPlaybackCompositor == nil {
		d.SendTo(c.ID, wire.EncodeMessage(wire.RecordingPlaybackResult{Success: false}))
		return
	}
	go recording.Preview(d.RecordingIndex, d.NewPlaybackCompositor, m, func(frame []byte) {
		d.SendTo(c.ID, frame)
	})
}

// handleServerConfigRequest answers with the full current settings snapshot
// for an admin, or ServerConfigHidden for anyone else.
func (d *Dispatcher) handleServerConfigRequest(c *Conn) {
	if c.Tier != wire.TierAdmin {
		d.SendTo(c.ID, wire.EncodeMessage(wire.ServerConfigHidden{}))
		return
	}
	snap := d.Settings.Snapshot()
	kvs := make([]wire.SettingKV, 0, len(snap))
	for tag, v := range snap {
		kvs = append(kvs, wire.SettingKV{Tag: int32(tag), Bool: v.Bool, Int: v.Int, String: v.String})
	}
	d.SendTo(c.ID, wire.EncodeMessage(wire.ServerConfigModifications{Settings: kvs}))
}

func (d *Dispatcher) handleServerConfigModifications(c *Conn, m wire.ServerConfigModifications) {
	if c.Tier != wire.TierAdmin {
		return
	}
	delta := make(settings.Snapshot, len(m.Settings))
	for _, kv := range m.Settings {
		delta[settings.Tag(kv.Tag)] = settings.Value{Bool: kv.Bool, Int: kv.Int, String: kv.String}
	}
	_ = d.Settings.Update(delta)
}

func (d *Dispatcher) handleCreateVM(c *Conn, m wire.CreateVM) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	id, err := d.VMs.CreateManagedVM(m.Config)
	if err != nil {
		return
	}
	detail := m.Config
	detail.ID = id
	d.SendTo(c.ID, wire.EncodeMessage(wire.VMDetailResult{Config: detail}))
}

func (d *Dispatcher) handleReadVM(c *Conn, m wire.ReadVM) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	detail, ok := d.VMs.ReadManagedVM(m.VMID)
	if !ok {
		return
	}
	d.SendTo(c.ID, wire.EncodeMessage(wire.VMDetailResult{Config: detail}))
}

func (d *Dispatcher) handleUpdateVMConfig(c *Conn, m wire.UpdateVMConfig) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	_ = d.VMs.UpdateManagedVM(m.Config)
}

func (d *Dispatcher) handleDeleteVM(c *Conn, m wire.DeleteVM) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	_ = d.VMs.DeleteManagedVM(m.VMID)
}

func (d *Dispatcher) handleStartVMs(c *Conn, m wire.StartVMs) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	d.VMs.SetVMsRunning(m.VMIDs, true)
}

func (d *Dispatcher) handleStopVMs(c *Conn, m wire.StopVMs) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	d.VMs.SetVMsRunning(m.VMIDs, false)
}

func (d *Dispatcher) handleRestartVMs(c *Conn, m wire.RestartVMs) {
	if c.Tier != wire.TierAdmin || d.VMs == nil {
		return
	}
	d.VMs.RestartVMs(m.VMIDs)
}

func (d *Dispatcher) handleCreateInvite(c *Conn, m wire.CreateInvite) {
	if c.Tier != wire.TierAdmin || d.Admin == nil {
		return
	}
	code, err := d.Admin.CreateInvite(m.Username, m.IsAdmin, c.AccountID)
	if err != nil {
		return
	}
	d.SendTo(c.ID, wire.EncodeMessage(wire.CreateInviteResult{Code: code}))
}

func (d *Dispatcher) handleDeleteInvite(c *Conn, m wire.DeleteInvite) {
	if c.Tier != wire.TierAdmin || d.Admin == nil {
		return
	}
	_ = d.Admin.DeleteInvite(m.Code)
}

func (d *Dispatcher) handleReserveUsername(c *Conn, m wire.ReserveUsername) {
	if c.Tier != wire.TierAdmin || d.Admin == nil {
		return
	}
	_ = d.Admin.ReserveUsername(m.Username, uint(m.AccountID))
}

func (d *Dispatcher) handleUnreserveUsername(c *Conn, m wire.UnreserveUsername) {
	if c.Tier != wire.TierAdmin || d.Admin == nil {
		return
	}
	_ = d.Admin.UnreserveUsername(m.Username)
}

func (d *Dispatcher) handleBanIP(c *Conn, m wire.BanIP) {
	if c.Tier != wire.TierAdmin || d.Admin == nil {
		return
	}
	if err := d.Admin.BanIP(m.IPBytes, m.Reason, c.AccountID); err != nil {
		return
	}
	if d.RunBanCommand != nil {
		d.RunBanCommand(m.IPBytes, m.Reason)
	}
}

func (d *Dispatcher) handleSendCaptcha(c *Conn, m wire.SendCaptcha) {
	if c.Tier != wire.TierAdmin || d.SetCaptchaRequired == nil {
		return
	}
	d.SetCaptchaRequired(turn.ConnID(m.ConnID))
}

func (d *Dispatcher) handleKickUser(c *Conn, m wire.KickUser) {
	if c.Tier != wire.TierAdmin || d.CloseConn == nil {
		return
	}
	d.CloseConn(turn.ConnID(m.ConnID))
}

// Disconnect releases every resource conn was holding: its channel
// membership (and turn-queue slot), its guest/username table entry, its
// session token, and its per-IP counter. Called exactly once by the owning
// connection goroutine on teardown.
func (d *Dispatcher) Disconnect(c *Conn) {
	if c.HasJoinedVM {
		if g, ok := d.Channels(c.ChannelID); ok {
			g.Dispatch(func(ch *channel.Channel) { ch.RemoveUser(c.ID) })
		}
	}
	if c.Username != "" {
		d.Guests.Remove(c.Username, c.ID)
	}
	if c.SessionToken != "" {
		d.Sessions.Remove(c.ID)
	}
	d.PerIPs.Decrement(c.IP)
	d.VMRegistry.Dispatch(func(r *vmregistry.Registry) { r.UnsubscribeVMList(c.ID) })
}
