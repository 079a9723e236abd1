package wire

import "encoding/binary"

// ServerConfigRequest asks for the current server configuration snapshot.
// Admin-only; carries no payload.
type ServerConfigRequest struct{}

func (ServerConfigRequest) Tag() Tag { return TagServerConfigRequest }

// SettingKV is one setting tag/value pair on the wire, mirroring
// settings.Value's schema-typed shape without importing internal/settings
// (wire stays independent of the settings package's own concerns).
type SettingKV struct {
	Tag    int32
	Bool   bool
	Int    int64
	String string
}

func putSettingKV(buf []byte, kv SettingKV) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(kv.Tag))
	if kv.Bool {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(kv.Int))
	return putString(buf, kv.String)
}

func getSettingKV(buf []byte) (SettingKV, []byte, error) {
	if err := requireLen(buf, 13, "setting-kv"); err != nil {
		return SettingKV{}, nil, err
	}
	tag := int32(binary.BigEndian.Uint32(buf[0:4]))
	b := buf[4] != 0
	i := int64(binary.BigEndian.Uint64(buf[5:13]))
	s, rest, err := getString(buf[13:])
	if err != nil {
		return SettingKV{}, nil, err
	}
	return SettingKV{Tag: tag, Bool: b, Int: i, String: s}, rest, nil
}

// ServerConfigModifications pushes an admin-authored delta over the current
// settings snapshot; only the tags present are changed.
type ServerConfigModifications struct {
	Settings []SettingKV
}

func (ServerConfigModifications) Tag() Tag { return TagServerConfigModifications }

func (m ServerConfigModifications) MarshalBinary() []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(len(m.Settings)))
	for _, kv := range m.Settings {
		buf = putSettingKV(buf, kv)
	}
	return buf
}

func DecodeServerConfigModifications(payload []byte) (ServerConfigModifications, error) {
	if err := requireLen(payload, 2, "server-config-modifications"); err != nil {
		return ServerConfigModifications{}, err
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	rest := payload[2:]
	out := make([]SettingKV, 0, n)
	for i := 0; i < n; i++ {
		var kv SettingKV
		var err error
		kv, rest, err = getSettingKV(rest)
		if err != nil {
			return ServerConfigModifications{}, err
		}
		out = append(out, kv)
	}
	return ServerConfigModifications{Settings: out}, nil
}

// ServerConfigHidden answers ServerConfigRequest from a non-admin connection:
// a flat refusal rather than a partial view.
type ServerConfigHidden struct{}

func (ServerConfigHidden) Tag() Tag { return TagServerConfigHidden }

// VMConfigDetail is the full admin-facing view of one VM's persisted
// configuration, exchanged by the create/read/update-vm family.
type VMConfigDetail struct {
	ID             uint32
	Description    string
	AutoStart      bool
	DisallowGuests bool
	TurnTimeSec    int32
	CompositorURI  string
}

func putVMConfigDetail(buf []byte, d VMConfigDetail) []byte {
	buf = binary.BigEndian.AppendUint32(buf, d.ID)
	buf = putString(buf, d.Description)
	buf = append(buf, boolByte(d.AutoStart), boolByte(d.DisallowGuests))
	buf = binary.BigEndian.AppendUint32(buf, uint32(d.TurnTimeSec))
	return putString(buf, d.CompositorURI)
}

func decodeVMConfigDetail(payload []byte) (VMConfigDetail, []byte, error) {
	if err := requireLen(payload, 10, "vm-config-detail"); err != nil {
		return VMConfigDetail{}, nil, err
	}
	id := binary.BigEndian.Uint32(payload[0:4])
	desc, rest, err := getString(payload[4:])
	if err != nil {
		return VMConfigDetail{}, nil, err
	}
	if err := requireLen(rest, 6, "vm-config-detail flags"); err != nil {
		return VMConfigDetail{}, nil, err
	}
	autoStart := rest[0] != 0
	disallowGuests := rest[1] != 0
	turnTime := int32(binary.BigEndian.Uint32(rest[2:6]))
	uri, rest, err := getString(rest[6:])
	if err != nil {
		return VMConfigDetail{}, nil, err
	}
	return VMConfigDetail{
		ID: id, Description: desc, AutoStart: autoStart,
		DisallowGuests: disallowGuests, TurnTimeSec: turnTime, CompositorURI: uri,
	}, rest, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// VMDetailResult answers both CreateVM and ReadVM with the resulting or
// current full configuration, reusing ReadVM's tag the way UsernameChanged
// reuses ChangeUsername's.
type VMDetailResult struct {
	Config VMConfigDetail
}

func (VMDetailResult) Tag() Tag { return TagReadVM }

func (m VMDetailResult) MarshalBinary() []byte { return putVMConfigDetail(nil, m.Config) }

// CreateVM requests a new managed VM. ID is 0 when the caller wants the
// server to allocate one.
type CreateVM struct {
	Config VMConfigDetail
}

func (CreateVM) Tag() Tag { return TagCreateVM }

func (m CreateVM) MarshalBinary() []byte { return putVMConfigDetail(nil, m.Config) }

func DecodeCreateVM(payload []byte) (CreateVM, error) {
	cfg, _, err := decodeVMConfigDetail(payload)
	return CreateVM{Config: cfg}, err
}

// ReadVM requests the full admin detail view of one VM by id.
type ReadVM struct {
	VMID uint32
}

func (ReadVM) Tag() Tag { return TagReadVM }

func (m ReadVM) MarshalBinary() []byte {
	return binary.BigEndian.AppendUint32(nil, m.VMID)
}

func DecodeReadVM(payload []byte) (ReadVM, error) {
	if err := requireLen(payload, 4, "read-vm"); err != nil {
		return ReadVM{}, err
	}
	return ReadVM{VMID: binary.BigEndian.Uint32(payload)}, nil
}

// UpdateVMConfig replaces the persisted configuration for Config.ID.
type UpdateVMConfig struct {
	Config VMConfigDetail
}

func (UpdateVMConfig) Tag() Tag { return TagUpdateVMConfig }

func (m UpdateVMConfig) MarshalBinary() []byte { return putVMConfigDetail(nil, m.Config) }

func DecodeUpdateVMConfig(payload []byte) (UpdateVMConfig, error) {
	cfg, _, err := decodeVMConfigDetail(payload)
	return UpdateVMConfig{Config: cfg}, err
}

// DeleteVM removes a managed VM's configuration and stops it if running.
type DeleteVM struct {
	VMID uint32
}

func (DeleteVM) Tag() Tag { return TagDeleteVM }

func (m DeleteVM) MarshalBinary() []byte {
	return binary.BigEndian.AppendUint32(nil, m.VMID)
}

func DecodeDeleteVM(payload []byte) (DeleteVM, error) {
	if err := requireLen(payload, 4, "delete-vm"); err != nil {
		return DeleteVM{}, err
	}
	return DeleteVM{VMID: binary.BigEndian.Uint32(payload)}, nil
}

func marshalVMIDList(ids []uint32) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(len(ids)))
	for _, id := range ids {
		buf = binary.BigEndian.AppendUint32(buf, id)
	}
	return buf
}

func decodeVMIDList(payload []byte) ([]uint32, error) {
	if err := requireLen(payload, 2, "vm-id-list"); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	rest := payload[2:]
	if err := requireLen(rest, n*4, "vm-id-list entries"); err != nil {
		return nil, err
	}
	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		ids[i] = binary.BigEndian.Uint32(rest[i*4 : i*4+4])
	}
	return ids, nil
}

// StartVMs/StopVMs/RestartVMs each carry a batch of VM ids to act on.
type StartVMs struct{ VMIDs []uint32 }

func (StartVMs) Tag() Tag                { return TagStartVMs }
func (m StartVMs) MarshalBinary() []byte { return marshalVMIDList(m.VMIDs) }

func DecodeStartVMs(payload []byte) (StartVMs, error) {
	ids, err := decodeVMIDList(payload)
	return StartVMs{VMIDs: ids}, err
}

type StopVMs struct{ VMIDs []uint32 }

func (StopVMs) Tag() Tag                { return TagStopVMs }
func (m StopVMs) MarshalBinary() []byte { return marshalVMIDList(m.VMIDs) }

func DecodeStopVMs(payload []byte) (StopVMs, error) {
	ids, err := decodeVMIDList(payload)
	return StopVMs{VMIDs: ids}, err
}

type RestartVMs struct{ VMIDs []uint32 }

func (RestartVMs) Tag() Tag                { return TagRestartVMs }
func (m RestartVMs) MarshalBinary() []byte { return marshalVMIDList(m.VMIDs) }

func DecodeRestartVMs(payload []byte) (RestartVMs, error) {
	ids, err := decodeVMIDList(payload)
	return RestartVMs{VMIDs: ids}, err
}

// CreateInvite mints a new registration invite, optionally pre-attributing
// a username and admin tier to whoever redeems it.
type CreateInvite struct {
	Username string
	IsAdmin  bool
}

func (CreateInvite) Tag() Tag { return TagCreateInvite }

func (m CreateInvite) MarshalBinary() []byte {
	buf := putString(nil, m.Username)
	return append(buf, boolByte(m.IsAdmin))
}

func DecodeCreateInvite(payload []byte) (CreateInvite, error) {
	u, rest, err := getString(payload)
	if err != nil {
		return CreateInvite{}, err
	}
	if err := requireLen(rest, 1, "create-invite admin flag"); err != nil {
		return CreateInvite{}, err
	}
	return CreateInvite{Username: u, IsAdmin: rest[0] != 0}, nil
}

// CreateInviteResult answers CreateInvite with the minted code.
type CreateInviteResult struct {
	Code string
}

func (CreateInviteResult) Tag() Tag { return TagCreateInviteResult }

func (m CreateInviteResult) MarshalBinary() []byte { return putString(nil, m.Code) }

func DecodeCreateInviteResult(payload []byte) (CreateInviteResult, error) {
	s, _, err := getString(payload)
	return CreateInviteResult{Code: s}, err
}

// DeleteInvite revokes an unredeemed invite by code.
type DeleteInvite struct {
	Code string
}

func (DeleteInvite) Tag() Tag { return TagDeleteInvite }

func (m DeleteInvite) MarshalBinary() []byte { return putString(nil, m.Code) }

func DecodeDeleteInvite(payload []byte) (DeleteInvite, error) {
	s, _, err := getString(payload)
	return DeleteInvite{Code: s}, err
}

// ReserveUsername blocks a username from guest allocation and collision-free
// self-service claiming, tying it to an existing account id.
type ReserveUsername struct {
	Username  string
	AccountID uint32
}

func (ReserveUsername) Tag() Tag { return TagReserveUsername }

func (m ReserveUsername) MarshalBinary() []byte {
	buf := putString(nil, m.Username)
	return binary.BigEndian.AppendUint32(buf, m.AccountID)
}

func DecodeReserveUsername(payload []byte) (ReserveUsername, error) {
	u, rest, err := getString(payload)
	if err != nil {
		return ReserveUsername{}, err
	}
	if err := requireLen(rest, 4, "reserve-username account id"); err != nil {
		return ReserveUsername{}, err
	}
	return ReserveUsername{Username: u, AccountID: binary.BigEndian.Uint32(rest)}, nil
}

// UnreserveUsername releases a previously reserved username.
type UnreserveUsername struct {
	Username string
}

func (UnreserveUsername) Tag() Tag { return TagUnreserveUsername }

func (m UnreserveUsername) MarshalBinary() []byte { return putString(nil, m.Username) }

func DecodeUnreserveUsername(payload []byte) (UnreserveUsername, error) {
	s, _, err := getString(payload)
	return UnreserveUsername{Username: s}, err
}

// BanIP bans an address, identified by its raw IP bytes (4 for IPv4, 16 for
// IPv6), recording a reason for the audit trail.
type BanIP struct {
	IPBytes []byte
	Reason  string
}

func (BanIP) Tag() Tag { return TagBanIP }

func (m BanIP) MarshalBinary() []byte {
	buf := putBytes(nil, m.IPBytes)
	return putString(buf, m.Reason)
}

func DecodeBanIP(payload []byte) (BanIP, error) {
	ip, rest, err := getBytes(payload)
	if err != nil {
		return BanIP{}, err
	}
	reason, _, err := getString(rest)
	if err != nil {
		return BanIP{}, err
	}
	return BanIP{IPBytes: ip, Reason: reason}, nil
}

// SendCaptcha forces the captcha-required flag on for one connection,
// addressed by its raw connection id.
type SendCaptcha struct {
	ConnID uint32
}

func (SendCaptcha) Tag() Tag { return TagSendCaptcha }

func (m SendCaptcha) MarshalBinary() []byte {
	return binary.BigEndian.AppendUint32(nil, m.ConnID)
}

func DecodeSendCaptcha(payload []byte) (SendCaptcha, error) {
	if err := requireLen(payload, 4, "send-captcha"); err != nil {
		return SendCaptcha{}, err
	}
	return SendCaptcha{ConnID: binary.BigEndian.Uint32(payload)}, nil
}

// KickUser closes one connection immediately, addressed by its raw
// connection id.
type KickUser struct {
	ConnID uint32
}

func (KickUser) Tag() Tag { return TagKickUser }

func (m KickUser) MarshalBinary() []byte {
	return binary.BigEndian.AppendUint32(nil, m.ConnID)
}

func DecodeKickUser(payload []byte) (KickUser, error) {
	if err := requireLen(payload, 4, "kick-user"); err != nil {
		return KickUser{}, err
	}
	return KickUser{ConnID: binary.BigEndian.Uint32(payload)}, nil
}
