package wire

import (
	"encoding/binary"
	"errors"
)

// UserTier is the three-tier access level: guest, registered, admin.
type UserTier uint8

const (
	TierGuest UserTier = iota
	TierRegular
	TierAdmin
)

// ConnectToChannel is sent by a client to join the global chat (id 0) or a
// VM's channel.
type ConnectToChannel struct {
	ChannelID uint32
}

func (ConnectToChannel) Tag() Tag { return TagConnectToChannel }

func (m ConnectToChannel) MarshalBinary() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, m.ChannelID)
	return buf
}

func DecodeConnectToChannel(payload []byte) (ConnectToChannel, error) {
	if err := requireLen(payload, 4, "connect-to-channel"); err != nil {
		return ConnectToChannel{}, err
	}
	return ConnectToChannel{ChannelID: binary.BigEndian.Uint32(payload)}, nil
}

// ConnectResponse answers ConnectToChannel: the assigned/known username,
// whether captcha is currently required, and the replayed chat history.
type ConnectResponse struct {
	Username        string
	CaptchaRequired bool
	History         []ChatMessage
}

func (ConnectResponse) Tag() Tag { return TagConnectResponse }

func (m ConnectResponse) MarshalBinary() []byte {
	buf := putString(nil, m.Username)
	if m.CaptchaRequired {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.History)))
	for _, cm := range m.History {
		buf = append(buf, cm.MarshalBinary()...)
	}
	return buf
}

// ChatDestKind disambiguates what ChatMessage.Destination addresses.
type ChatDestKind uint8

const (
	// ChatDestChannel routes to a channel id (0 is the global channel);
	// the sender must currently be joined to that exact channel.
	ChatDestChannel ChatDestKind = iota
	// ChatDestPrivate routes to an existing private-chat room, addressed
	// by the sender's own local chat-id for that room.
	ChatDestPrivate
	// ChatDestNewPrivate opens a new private-chat room with the peer
	// connection named by Destination (a raw connection id).
	ChatDestNewPrivate
)

// ChatMessage is both the wire request (client → server, DestKind +
// Destination + Text populated) and the broadcast record (server →
// clients, all fields populated, immutable once built).
type ChatMessage struct {
	DestKind    ChatDestKind
	Destination uint32
	Sender      string
	Tier        UserTier
	Text        string
	TimestampMS int64
}

func (ChatMessage) Tag() Tag { return TagChatMessage }

func (m ChatMessage) MarshalBinary() []byte {
	buf := []byte{byte(m.DestKind)}
	buf = binary.BigEndian.AppendUint32(buf, m.Destination)
	buf = putString(buf, m.Sender)
	buf = append(buf, byte(m.Tier))
	buf = putString(buf, m.Text)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.TimestampMS))
	return buf
}

func DecodeChatMessage(payload []byte) (ChatMessage, error) {
	if err := requireLen(payload, 5, "chat-message"); err != nil {
		return ChatMessage{}, err
	}
	kind := ChatDestKind(payload[0])
	dest := binary.BigEndian.Uint32(payload[1:5])
	sender, rest, err := getString(payload[5:])
	if err != nil {
		return ChatMessage{}, err
	}
	if len(rest) < 1 {
		return ChatMessage{}, errors.New("wire: truncated chat-message tier")
	}
	tier := UserTier(rest[0])
	text, rest, err := getString(rest[1:])
	if err != nil {
		return ChatMessage{}, err
	}
	var ts int64
	if len(rest) >= 8 {
		ts = int64(binary.BigEndian.Uint64(rest))
	}
	return ChatMessage{DestKind: kind, Destination: dest, Sender: sender, Tier: tier, Text: text, TimestampMS: ts}, nil
}

// ChangeUsername requests a new username for the connection.
type ChangeUsername struct {
	NewUsername string
}

func (ChangeUsername) Tag() Tag { return TagChangeUsername }

func DecodeChangeUsername(payload []byte) (ChangeUsername, error) {
	s, _, err := getString(payload)
	return ChangeUsername{NewUsername: s}, err
}

// UsernameTaken is returned when a requested username collides.
type UsernameTaken struct{}

func (UsernameTaken) Tag() Tag { return TagUsernameTaken }

// UsernameChanged is broadcast to every channel the connection has joined.
type UsernameChanged struct {
	OldUsername string
	NewUsername string
}

func (UsernameChanged) Tag() Tag { return TagChangeUsername }

func (m UsernameChanged) MarshalBinary() []byte {
	buf := putString(nil, m.OldUsername)
	return putString(buf, m.NewUsername)
}

// LoginRequest carries username/password credentials.
type LoginRequest struct {
	Username string
	Password string
}

func (LoginRequest) Tag() Tag { return TagLoginRequest }

func DecodeLoginRequest(payload []byte) (LoginRequest, error) {
	u, rest, err := getString(payload)
	if err != nil {
		return LoginRequest{}, err
	}
	p, _, err := getString(rest)
	return LoginRequest{Username: u, Password: p}, err
}

// LoginResultCode enumerates typed login outcomes.
type LoginResultCode uint8

const (
	LoginOK LoginResultCode = iota
	LoginInvalidPassword
	LoginInvalidUsername
	LoginTOTPRequired
	LoginBanned
)

// LoginResponse answers LoginRequest.
type LoginResponse struct {
	Result   LoginResultCode
	Username string
	IsAdmin  bool
}

func (LoginResponse) Tag() Tag { return TagLoginResponse }

func (m LoginResponse) MarshalBinary() []byte {
	buf := []byte{byte(m.Result)}
	buf = putString(buf, m.Username)
	if m.IsAdmin {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// TwoFactorResponse carries the client's TOTP code for a pending login.
type TwoFactorResponse struct {
	Code string
}

func (TwoFactorResponse) Tag() Tag { return TagTwoFactorResponse }

func DecodeTwoFactorResponse(payload []byte) (TwoFactorResponse, error) {
	s, _, err := getString(payload)
	return TwoFactorResponse{Code: s}, err
}

// AccountRegistrationRequest requests a new account, optionally redeeming
// an invite id and/or enrolling a TOTP secret.
type AccountRegistrationRequest struct {
	Username        string
	Password        string
	InviteID        string
	TOTPKeyProvided bool
	TOTPKey         []byte
}

func (AccountRegistrationRequest) Tag() Tag { return TagAccountRegistrationRequest }

func DecodeAccountRegistrationRequest(payload []byte) (AccountRegistrationRequest, error) {
	u, rest, err := getString(payload)
	if err != nil {
		return AccountRegistrationRequest{}, err
	}
	p, rest, err := getString(rest)
	if err != nil {
		return AccountRegistrationRequest{}, err
	}
	inv, rest, err := getString(rest)
	if err != nil {
		return AccountRegistrationRequest{}, err
	}
	if len(rest) < 1 {
		return AccountRegistrationRequest{}, errors.New("wire: truncated account-registration-request")
	}
	provided := rest[0] != 0
	rest = rest[1:]
	var key []byte
	if provided {
		key, rest, err = getBytes(rest)
		if err != nil {
			return AccountRegistrationRequest{}, err
		}
	}
	_ = rest
	return AccountRegistrationRequest{Username: u, Password: p, InviteID: inv, TOTPKeyProvided: provided, TOTPKey: key}, nil
}

// CaptchaRequired notifies the client it must solve a captcha before
// mutating messages will be honored.
type CaptchaRequired struct{}

func (CaptchaRequired) Tag() Tag { return TagCaptchaRequired }

// CaptchaCompleted carries the client's captcha solution token.
type CaptchaCompleted struct {
	Token string
}

func (CaptchaCompleted) Tag() Tag { return TagCaptchaCompleted }

func DecodeCaptchaCompleted(payload []byte) (CaptchaCompleted, error) {
	s, _, err := getString(payload)
	return CaptchaCompleted{Token: s}, err
}

// TurnRequest asks to be enqueued for input control on the connected VM.
type TurnRequest struct{}

func (TurnRequest) Tag() Tag { return TagTurnRequest }

// TurnUpdate broadcasts the current holder and queue length for a channel.
type TurnUpdate struct {
	Holder     string // empty if no holder
	QueueLen   int
	TurnTimeMS int64
}

func (TurnUpdate) Tag() Tag { return TagTurnUpdate }

func (m TurnUpdate) MarshalBinary() []byte {
	buf := putString(nil, m.Holder)
	buf = binary.BigEndian.AppendUint32(buf, uint32(m.QueueLen))
	return binary.BigEndian.AppendUint64(buf, uint64(m.TurnTimeMS))
}

// EndTurn relinquishes (or, from an admin, forcibly ends) the current turn.
type EndTurn struct{}

func (EndTurn) Tag() Tag { return TagEndTurn }

// PauseTurn / ResumeTurn are admin-only turn-timer controls.
type PauseTurn struct{}

func (PauseTurn) Tag() Tag { return TagPauseTurn }

type ResumeTurn struct{}

func (ResumeTurn) Tag() Tag { return TagResumeTurn }

// Vote casts a yes/no ballot on the connected VM.
type Vote struct {
	Yes bool
}

func (Vote) Tag() Tag { return TagVote }

func DecodeVote(payload []byte) (Vote, error) {
	if err := requireLen(payload, 1, "vote"); err != nil {
		return Vote{}, err
	}
	return Vote{Yes: payload[0] != 0}, nil
}

// GuacInstr carries an opaque remote-desktop input instruction.
type GuacInstr struct {
	Data []byte
}

func (GuacInstr) Tag() Tag { return TagGuacInstr }

func DecodeGuacInstr(payload []byte) (GuacInstr, error) {
	b := make([]byte, len(payload))
	copy(b, payload)
	return GuacInstr{Data: b}, nil
}

func (m GuacInstr) MarshalBinary() []byte { return append([]byte(nil), m.Data...) }

// VMListRequest subscribes the connection to the public VM list.
type VMListRequest struct{}

func (VMListRequest) Tag() Tag { return TagVMListRequest }

// VMInfo is the public metadata/thumbnail tuple for one VM.
type VMInfo struct {
	ID          uint32
	Description string
}

// VMInfoList is the immutable snapshot broadcast to public list viewers.
type VMInfoList struct {
	Generation uint64
	VMs        []VMInfo
}

func (VMInfoList) Tag() Tag { return TagVMInfoList }

func (m VMInfoList) MarshalBinary() []byte {
	buf := binary.BigEndian.AppendUint64(nil, m.Generation)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.VMs)))
	for _, vm := range m.VMs {
		buf = binary.BigEndian.AppendUint32(buf, vm.ID)
		buf = putString(buf, vm.Description)
	}
	return buf
}

// AdminVMInfo is the superset of VMInfo visible only to admins.
type AdminVMInfo struct {
	ID            uint32
	Description   string
	Running       bool
	ConnectedUsers int
}

// AdminVMInfoList is the immutable snapshot broadcast to admin list viewers.
type AdminVMInfoList struct {
	Generation uint64
	VMs        []AdminVMInfo
}

func (AdminVMInfoList) Tag() Tag { return TagAdminVMInfoList }

func (m AdminVMInfoList) MarshalBinary() []byte {
	buf := binary.BigEndian.AppendUint64(nil, m.Generation)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.VMs)))
	for _, vm := range m.VMs {
		buf = binary.BigEndian.AppendUint32(buf, vm.ID)
		buf = putString(buf, vm.Description)
		if vm.Running {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(vm.ConnectedUsers))
	}
	return buf
}

// VMThumbnail carries a PNG-encoded preview frame for one VM.
type VMThumbnail struct {
	VMID uint32
	PNG  []byte
}

func (VMThumbnail) Tag() Tag { return TagVMThumbnail }

func (m VMThumbnail) MarshalBinary() []byte {
	buf := binary.BigEndian.AppendUint32(nil, m.VMID)
	return putBytes(buf, m.PNG)
}

// RecordingPreviewRequest asks for thumbnails covering [Start,Stop].
type RecordingPreviewRequest struct {
	VMID         uint32
	StartMS      int64
	StopMS       int64
	TimeIntervalMS int64 // 0 means "one thumbnail per keyframe"
	Width        int32
	Height       int32
}

func (RecordingPreviewRequest) Tag() Tag { return TagRecordingPreviewRequest }

func DecodeRecordingPreviewRequest(payload []byte) (RecordingPreviewRequest, error) {
	if err := requireLen(payload, 32, "recording-preview-request"); err != nil {
		return RecordingPreviewRequest{}, err
	}
	return RecordingPreviewRequest{
		VMID:           binary.BigEndian.Uint32(payload[0:4]),
		StartMS:        int64(binary.BigEndian.Uint64(payload[4:12])),
		StopMS:         int64(binary.BigEndian.Uint64(payload[12:20])),
		TimeIntervalMS: int64(binary.BigEndian.Uint64(payload[20:28])),
		Width:          int32(binary.BigEndian.Uint32(payload[28:32])),
	}, nil
}

// RecordingPlaybackPreview streams one thumbnail of a preview sequence.
type RecordingPlaybackPreview struct {
	VMID        uint32
	TimestampMS int64
	PNG         []byte
}

func (RecordingPlaybackPreview) Tag() Tag { return TagRecordingPlaybackPreview }

func (m RecordingPlaybackPreview) MarshalBinary() []byte {
	buf := binary.BigEndian.AppendUint32(nil, m.VMID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.TimestampMS))
	return putBytes(buf, m.PNG)
}

// RecordingPlaybackResult terminates a preview sequence with a success flag.
type RecordingPlaybackResult struct {
	Success bool
}

func (RecordingPlaybackResult) Tag() Tag { return TagRecordingPlaybackResult }

func (m RecordingPlaybackResult) MarshalBinary() []byte {
	if m.Success {
		return []byte{1}
	}
	return []byte{0}
}

// SessionInvalidated notifies a connection that its session id was
// superseded by a newer login.
type SessionInvalidated struct{}

func (SessionInvalidated) Tag() Tag { return TagSessionInvalidated }
