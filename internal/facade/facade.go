// Package facade wires every collaborator package into one runnable
// CollabVM server process: the accounts database, settings store, VM
// registry, per-channel guards, the connection dispatcher, and the
// WebSocket/HTTP transport layers. It plays the composition-root role of
// a NewServerWithConfig constructor: every dependency is built once, in
// order, and threaded through explicit constructor arguments rather than
// reached for as global state.
package facade

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"collabvm-server/internal/accountdb"
	"collabvm-server/internal/captcha"
	"collabvm-server/internal/channel"
	"collabvm-server/internal/config"
	"collabvm-server/internal/guard"
	"collabvm-server/internal/httpapi"
	"collabvm-server/internal/logging"
	"collabvm-server/internal/metrics"
	"collabvm-server/internal/recording"
	"collabvm-server/internal/registry"
	"collabvm-server/internal/screenshot"
	"collabvm-server/internal/session"
	"collabvm-server/internal/settings"
	"collabvm-server/internal/turn"
	"collabvm-server/internal/vmregistry"
	"collabvm-server/internal/wire"
)

// GlobalChannelID is the always-present channel every connection lands in
// before joining a VM.
const GlobalChannelID uint32 = 0

// ThumbnailWidth/ThumbnailHeight size the placeholder live and playback
// compositors (the real remote-desktop compositor is out of scope here).
const (
	ThumbnailWidth  = 256
	ThumbnailHeight = 256
)

// liveConn pairs a websocket connection with its session state and the
// channel that wakes its writer goroutine. gorilla/websocket forbids
// concurrent writers on a single connection, so writeLoop is the only
// writer, and outbound frames are queued through session.Conn's
// drop-oldest-chat policy rather than written inline, so a slow reader
// cannot make a broadcaster block on that reader's socket.
type liveConn struct {
	ws   *websocket.Conn
	conn *session.Conn
	wake chan struct{}
}

// enqueue queues frame for delivery and wakes the writer goroutine.
func (lc *liveConn) enqueue(frame []byte) {
	lc.conn.Enqueue(frame, isChatFrame(frame))
	select {
	case lc.wake <- struct{}{}:
	default:
	}
}

func isChatFrame(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	return wire.Tag(uint16(frame[0])<<8|uint16(frame[1])) == wire.TagChatMessage
}

// writeLoop drains lc's queue onto the socket whenever woken, until stopCh
// closes. It is the sole writer of lc.ws, so no additional write lock is
// needed.
func (lc *liveConn) writeLoop(stopCh <-chan struct{}) {
	for {
		select {
		case <-lc.wake:
			for _, frame := range lc.conn.Drain() {
				if err := lc.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return
				}
			}
		case <-stopCh:
			return
		}
	}
}

// channelEntry keeps a channel's guard alongside a direct pointer to the
// channel itself: mutations route through the guard, but channel.Channel's
// read methods (Count, GetUserData, GetUsers) take their own internal
// RWMutex and are safe to call from any goroutine, which is how
// vmregistry.AdminVm.Channel is read during a registry-wide snapshot.
type channelEntry struct {
	guard *guard.Guard[*channel.Channel]
	ch    *channel.Channel
}

// Server is the fully wired CollabVM server process.
type Server struct {
	cfg  *config.Config
	logs *logging.LogManager
	log  *logging.Logger

	db          *accountdb.DB
	settings    *settings.Store
	tokens      *session.TokenManager
	captchaVerf captcha.Verifier

	sessions *registry.SessionRegistry
	guests   *registry.GuestTable
	perIPs   *registry.PerIPTable

	vmRegistry *guard.Guard[*vmregistry.Registry]

	channelsMu sync.RWMutex
	channels   map[uint32]channelEntry

	dispatcher *session.Dispatcher

	connsMu sync.RWMutex
	conns   map[turn.ConnID]*liveConn
	nextID  uint64

	upgrader websocket.Upgrader
	wsServer *http.Server
	http     *httpapi.Server

	vmInfoTicker *time.Ticker
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// New wires every collaborator per cfg and returns a ready-to-Start Server.
func New(cfg *config.Config) (*Server, error) {
	logs := logging.NewLogManager()
	log := logs.For("facade")

	db, err := accountdb.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("facade: opening database: %w", err)
	}

	store, err := settings.New(db)
	if err != nil {
		return nil, fmt.Errorf("facade: loading settings: %w", err)
	}

	tokenSecret := cfg.TokenSecret
	if tokenSecret == "" {
		tokenSecret, err = randomHex(32)
		if err != nil {
			return nil, fmt.Errorf("facade: generating token secret: %w", err)
		}
	}

	reg := vmregistry.New()

	s := &Server{
		cfg:         cfg,
		logs:        logs,
		log:         log,
		db:          db,
		settings:    store,
		tokens:      session.NewTokenManagerWithConfig(tokenSecret, cfg.TokenExpiry),
		captchaVerf: captcha.AlwaysPass{},
		sessions:    registry.NewSessionRegistry(),
		guests:      registry.NewGuestTable(),
		perIPs:      registry.NewPerIPTable(),
		channels:    make(map[uint32]channelEntry),
		conns:       make(map[turn.ConnID]*liveConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		stopCh: make(chan struct{}),
	}
	reg.BroadcastToViewers = s.broadcastToViewers
	s.vmRegistry = guard.New(reg)
	s.guests.Reserved = db.IsReserved

	s.ensureChannel(GlobalChannelID)

	s.dispatcher = &session.Dispatcher{
		Channels:              s.channelGuard,
		VMRegistry:             s.vmRegistry,
		Settings:               store,
		Sessions:               s.sessions,
		Guests:                 s.guests,
		PerIPs:                 s.perIPs,
		Tokens:                 s.tokens,
		Accounts:               db,
		Captcha:                s.captchaVerf,
		SendTo:                 s.sendTo,
		RecordingIndex:         db,
		NewPlaybackCompositor:  func() screenshot.PlaybackCompositor { return screenshot.NewFakePlaybackCompositor(ThumbnailWidth, ThumbnailHeight) },
		Admin:                  db,
		VMs:                    s,
		RunBanCommand:          s.execBanIPCommand,
		CloseConn:              s.closeConn,
		SetCaptchaRequired:     s.setCaptchaRequired,
		GetConn:                s.getConn,
	}

	s.http = httpapi.NewWithConfig(s.vmRegistry, db, s.tokens, httpapi.ServerConfig{Addr: cfg.HTTPAddr, Debug: cfg.Debug})

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveWS)
	s.wsServer = &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	return s, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ensureChannel returns id's guard, creating a fresh channel.Channel wired
// with this server's broadcast and turn-notification callbacks if id has
// never been joined before.
func (s *Server) ensureChannel(id uint32) *guard.Guard[*channel.Channel] {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	if e, ok := s.channels[id]; ok {
		return e.guard
	}

	ch := channel.New(id, s.cfg.DefaultChatHistory, s.cfg.DefaultTurnLength)
	ch.Broadcast = func(members []turn.ConnID, frame []byte) {
		for _, m := range members {
			s.sendTo(m, frame)
		}
	}
	g := guard.New(ch)
	s.wireTurnCallbacks(id, g, ch)
	s.channels[id] = channelEntry{guard: g, ch: ch}
	return g
}

func (s *Server) channelGuard(id uint32) (*guard.Guard[*channel.Channel], bool) {
	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	e, ok := s.channels[id]
	return e.guard, ok
}

// wireTurnCallbacks arms ch.Turn.OnUpdate/OnExpire. OnUpdate fires
// synchronously from inside whatever guard-dispatched call changed the
// turn state, so it may read ch directly; OnExpire fires on a bare
// time.AfterFunc goroutine and must be redirected onto g via guard.Wrap
// before it may touch ch.
func (s *Server) wireTurnCallbacks(vmID uint32, g *guard.Guard[*channel.Channel], ch *channel.Channel) {
	vmLabel := strconv.FormatUint(uint64(vmID), 10)
	var lastHolder turn.ConnID
	var hadHolder bool

	ch.Turn.OnUpdate = func(holder turn.ConnID, hasHolder bool, queueLen int) {
		metrics.TurnQueueDepth.WithLabelValues(vmLabel).Set(float64(queueLen))
		if hasHolder && (!hadHolder || holder != lastHolder) {
			metrics.TurnGrantsTotal.Inc()
		}
		hadHolder, lastHolder = hasHolder, holder
		s.broadcastTurnUpdate(ch, holder, hasHolder, queueLen)
	}

	expire := guard.Wrap(g, func(c *channel.Channel, _ struct{}) {
		c.Turn.EndWhoeverHolds()
	})
	ch.Turn.OnExpire = func() { expire(struct{}{}) }
}

func (s *Server) broadcastTurnUpdate(ch *channel.Channel, holder turn.ConnID, hasHolder bool, queueLen int) {
	var holderName string
	var turnTimeMS int64
	if hasHolder {
		if d, ok := ch.GetUserData(holder); ok {
			holderName = d.Username
		}
		turnTimeMS = ch.Turn.TurnLength().Milliseconds()
	}
	ch.BroadcastMessage(wire.EncodeMessage(wire.TurnUpdate{
		Holder:     holderName,
		QueueLen:   queueLen,
		TurnTimeMS: turnTimeMS,
	}))
}

// broadcastToViewers is vmregistry.Registry.BroadcastToViewers: fan frame
// out to every viewer connection id in viewers.
func (s *Server) broadcastToViewers(viewers map[vmregistry.ConnID]struct{}, frame []byte) {
	for id := range viewers {
		s.sendTo(id, frame)
	}
}

// sendTo is session.Dispatcher.SendTo: deliver frame to one live connection
// by id, silently dropping it if the connection has since disconnected.
func (s *Server) sendTo(id turn.ConnID, frame []byte) {
	s.connsMu.RLock()
	lc, ok := s.conns[id]
	s.connsMu.RUnlock()
	if !ok {
		return
	}
	lc.enqueue(frame)
}

// CreateVM registers a new managed virtual machine: an AdminVm entry in the
// registry, its own channel (mirroring the VM id), a recording controller
// persisting closed files through the accounts database, and a placeholder
// live compositor (the real remote-desktop compositor is out of scope here).
func (s *Server) CreateVM(id uint32, description string, autoStart bool, turnTimeSec int) error {
	s.ensureChannel(id)
	s.channelsMu.RLock()
	ch := s.channels[id].ch
	s.channelsMu.RUnlock()

	recorder := recording.New(id, s.cfg.RecordingDir, s.logs.For(fmt.Sprintf("vm:%d", id)))
	recorder.SetRecordingSettings(toRecordingSettings(s.settings.Recording()))
	recorder.OnFileClosed = func(path string, header recording.FileHeader) {
		if err := s.db.RecordFile(header.VMID, path, header.StartMS, header.StopMS, (&header).Size()); err != nil {
			s.log.Errorf("vm %d: failed to persist recording file metadata: %v", id, err)
		}
	}

	vm := &vmregistry.AdminVm{
		ID:          id,
		Description: description,
		AutoStart:   autoStart,
		TurnTimeSec: turnTimeSec,
		HasVMInfo:   true,
		Channel:     ch,
		Recorder:    recorder,
		Compositor:  screenshot.NewFakeLiveCompositor(ThumbnailWidth, ThumbnailHeight),
	}
	if turnTimeSec > 0 {
		ch.Turn.SetTurnLength(time.Duration(turnTimeSec) * time.Second)
	}

	var startErr error
	s.vmRegistry.DispatchSync(func(r *vmregistry.Registry) {
		r.AddVM(vm)
		if autoStart {
			if startErr = vm.Recorder.Start(); startErr == nil {
				vm.Running = true
				metrics.VMsRunning.Inc()
				metrics.RecordingFilesActive.Inc()
			}
		}
		r.UpdateSingleVM(id)
	})
	return startErr
}

func toRecordingSettings(rs settings.RecordingSettings) recording.Settings {
	return recording.Settings{
		FileDuration:     rs.FileDuration,
		KeyframeInterval: rs.KeyframeInterval,
		CaptureDisplay:   rs.CaptureDisplay,
		CaptureInput:     rs.CaptureInput,
		CaptureAudio:     rs.CaptureAudio,
	}
}

// RemoveVM tears a VM down: stops its recorder, clears its channel's
// members, and drops it from the registry.
func (s *Server) RemoveVM(id uint32) error {
	var vm *vmregistry.AdminVm
	var ok bool
	s.vmRegistry.DispatchSync(func(r *vmregistry.Registry) {
		vm, ok = r.RemoveVM(id)
		if !ok {
			return
		}
		if vm.Running && vm.Recorder != nil {
			_ = vm.Recorder.Stop()
			metrics.VMsRunning.Dec()
			metrics.RecordingFilesActive.Dec()
		}
	})
	if !ok {
		return fmt.Errorf("facade: no such vm %d", id)
	}

	if g, hasGuard := s.channelGuard(id); hasGuard {
		g.DispatchSync(func(ch *channel.Channel) {
			removed := ch.Clear()
			for _, connID := range removed {
				s.sendTo(connID, wire.EncodeMessage(wire.SessionInvalidated{}))
			}
		})
	}
	return nil
}

// CreateManagedVM provisions a brand-new VM from cfg (cfg.ID is ignored;
// the database assigns one) and returns the assigned id. Implements
// session.VMManager.
func (s *Server) CreateManagedVM(cfg wire.VMConfigDetail) (uint32, error) {
	dbCfg, err := s.db.CreateVMConfig(cfg.Description, int(cfg.TurnTimeSec), cfg.DisallowGuests, cfg.AutoStart)
	if err != nil {
		return 0, err
	}
	if err := s.CreateVM(dbCfg.ID, dbCfg.Description, dbCfg.AutoStart, dbCfg.TurnTimeSec); err != nil {
		return 0, err
	}
	s.setChannelDisallowGuests(dbCfg.ID, cfg.DisallowGuests)
	return dbCfg.ID, nil
}

// ReadManagedVM returns the persisted configuration for id. Implements
// session.VMManager.
func (s *Server) ReadManagedVM(id uint32) (wire.VMConfigDetail, bool) {
	cfg, err := s.db.GetVMConfig(id)
	if err != nil {
		return wire.VMConfigDetail{}, false
	}
	return wire.VMConfigDetail{
		ID:             cfg.ID,
		Description:    cfg.Description,
		AutoStart:      cfg.AutoStart,
		DisallowGuests: cfg.DisallowGuests,
		TurnTimeSec:    int32(cfg.TurnTimeSec),
		CompositorURI:  cfg.CompositorURI,
	}, true
}

// UpdateManagedVM replaces the persisted configuration for cfg.ID and
// republishes its admin/public list entries. Implements session.VMManager.
func (s *Server) UpdateManagedVM(cfg wire.VMConfigDetail) error {
	dbCfg := &accountdb.VMConfig{
		ID:             cfg.ID,
		Description:    cfg.Description,
		AutoStart:      cfg.AutoStart,
		DisallowGuests: cfg.DisallowGuests,
		TurnTimeSec:    int(cfg.TurnTimeSec),
		CompositorURI:  cfg.CompositorURI,
	}
	if err := s.db.UpsertVMConfig(dbCfg); err != nil {
		return err
	}
	s.setChannelDisallowGuests(cfg.ID, cfg.DisallowGuests)
	s.vmRegistry.DispatchSync(func(r *vmregistry.Registry) {
		vm, ok := r.GetVM(cfg.ID)
		if !ok {
			return
		}
		vm.Description = cfg.Description
		vm.TurnTimeSec = int(cfg.TurnTimeSec)
		r.UpdateSingleVM(cfg.ID)
	})
	return nil
}

// DeleteManagedVM removes id's persisted configuration and tears the
// running VM down. Implements session.VMManager.
func (s *Server) DeleteManagedVM(id uint32) error {
	_ = s.db.DeleteVMConfig(id)
	return s.RemoveVM(id)
}

func (s *Server) setChannelDisallowGuests(id uint32, disallow bool) {
	g := s.ensureChannel(id)
	g.Dispatch(func(ch *channel.Channel) { ch.DisallowGuests = disallow })
}

// SetVMsRunning starts or stops every VM named in ids. Implements
// session.VMManager.
func (s *Server) SetVMsRunning(ids []uint32, running bool) {
	for _, id := range ids {
		s.setVMRunning(id, running)
	}
}

// RestartVMs stops then starts every VM named in ids. Implements
// session.VMManager.
func (s *Server) RestartVMs(ids []uint32) {
	for _, id := range ids {
		s.setVMRunning(id, false)
		s.setVMRunning(id, true)
	}
}

func (s *Server) setVMRunning(id uint32, running bool) {
	s.vmRegistry.DispatchSync(func(r *vmregistry.Registry) {
		vm, ok := r.GetVM(id)
		if !ok || vm.Running == running || vm.Recorder == nil {
			return
		}
		if running {
			if err := vm.Recorder.Start(); err != nil {
				return
			}
			vm.Running = true
			metrics.VMsRunning.Inc()
			metrics.RecordingFilesActive.Inc()
		} else {
			_ = vm.Recorder.Stop()
			vm.Running = false
			metrics.VMsRunning.Dec()
			metrics.RecordingFilesActive.Dec()
		}
		r.UpdateSingleVM(id)
	})
}

// execBanIPCommand runs the operator-configured ban command (settings.
// TagBanIPCommand), substituting {ip} and {reason} placeholders. A blank
// command disables OS-level enforcement entirely; the persisted ban still
// blocks the address at accept time via db.IsBanned.
func (s *Server) execBanIPCommand(ipBytes []byte, reason string) {
	tmpl := s.settings.Get(settings.TagBanIPCommand).String
	if tmpl == "" {
		return
	}
	ip := net.IP(ipBytes).String()
	line := strings.NewReplacer("{ip}", ip, "{reason}", reason).Replace(tmpl)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if err := exec.Command(fields[0], fields[1:]...).Run(); err != nil {
		s.log.Errorf("ban ip command failed for %s: %v", ip, err)
	}
}

// closeConn forcibly closes one connection's transport. Implements the
// session.Dispatcher.CloseConn hook (admin kick-user).
func (s *Server) closeConn(id turn.ConnID) {
	s.connsMu.RLock()
	lc, ok := s.conns[id]
	s.connsMu.RUnlock()
	if !ok {
		return
	}
	_ = lc.ws.Close()
}

// setCaptchaRequired clears one connection's captcha-verified flag and
// notifies it. Implements the session.Dispatcher.SetCaptchaRequired hook.
func (s *Server) setCaptchaRequired(id turn.ConnID) {
	s.connsMu.RLock()
	lc, ok := s.conns[id]
	s.connsMu.RUnlock()
	if !ok {
		return
	}
	lc.conn.CaptchaVerified = false
	lc.conn.CaptchaRequired = true
	s.sendTo(id, wire.EncodeMessage(wire.CaptchaRequired{}))
}

// getConn resolves a raw connection id to its live session.Conn. Implements
// the session.Dispatcher.GetConn hook (new private chats by peer id).
func (s *Server) getConn(id turn.ConnID) (*session.Conn, bool) {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	lc, ok := s.conns[id]
	if !ok {
		return nil, false
	}
	return lc.conn, true
}

// Start begins serving WebSocket connections and the operational HTTP
// surface, and starts the periodic VM-info refresh timer.
func (s *Server) Start() error {
	interval := s.cfg.VMInfoInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s.vmInfoTicker = time.NewTicker(interval)
	go s.runVMInfoTicker()

	go func() {
		if err := s.http.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("http api server stopped: %v", err)
		}
	}()

	s.log.Infof("listening for connections on %s", s.cfg.ListenAddr)
	if err := s.wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) runVMInfoTicker() {
	for {
		select {
		case <-s.vmInfoTicker.C:
			s.vmRegistry.Dispatch(func(r *vmregistry.Registry) {
				r.UpdateAllVMs()
				for _, vm := range r.AllVMs() {
					connected := 0
					if vm.Channel != nil {
						connected = vm.Channel.Count()
					}
					metrics.VMConnectedUsers.WithLabelValues(strconv.FormatUint(uint64(vm.ID), 10)).Set(float64(connected))
				}
			})
		case <-s.stopCh:
			return
		}
	}
}

// Stop gracefully shuts both HTTP surfaces down and stops the VM-info
// ticker. Open connections are closed as their read loops observe the
// shutdown.
func (s *Server) Stop() error {
	var stopErr error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.vmInfoTicker != nil {
			s.vmInfoTicker.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.wsServer.Shutdown(ctx); err != nil {
			stopErr = err
		}
		_ = s.http.Stop()

		s.connsMu.Lock()
		for id, lc := range s.conns {
			_ = lc.ws.Close()
			delete(s.conns, id)
		}
		s.connsMu.Unlock()
	})
	return stopErr
}

// serveWS upgrades an HTTP request to a WebSocket connection and runs its
// read loop until disconnect, matching the accept-then-per-connection-
// goroutine shape the rest of the pack uses for long-lived transports
// (adapted from the wsConn/User pattern shown in the retrieval pack's
// realtime-collaboration reference code).
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if parsedIP := parseRemoteIP(ip); parsedIP != nil && s.db.IsBanned(parsedIP) {
		_ = ws.Close()
		return
	}

	limit := 0
	if s.settings.Get(settings.TagMaxConnectionsEnabled).Bool {
		limit = int(s.settings.Get(settings.TagMaxConnections).Int)
	}
	if !s.perIPs.TryIncrement(ip, limit) {
		_ = ws.Close()
		return
	}

	id := turn.ConnID(nextConnID(&s.nextID))
	c := session.NewConn(id, ip)
	lc := &liveConn{ws: ws, conn: c, wake: make(chan struct{}, 1)}
	s.connsMu.Lock()
	s.conns[id] = lc
	s.connsMu.Unlock()

	connDone := make(chan struct{})
	go lc.writeLoop(connDone)

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer func() {
		close(connDone)
		metrics.ConnectionsActive.Dec()
		s.dispatcher.Disconnect(c)
		s.connsMu.Lock()
		delete(s.conns, id)
		s.connsMu.Unlock()
		_ = ws.Close()
	}()

	maxLen := wire.MaxNonAdminFrame
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if c.Tier == wire.TierAdmin {
			maxLen = 0
		}
		frame, _, err := wire.Decode(data, maxLen)
		if err != nil {
			return
		}
		if frame.Payload == nil && frame.Tag == 0 {
			continue
		}
		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			continue
		}
		s.dispatcher.Handle(c, msg)
	}
}

func nextConnID(counter *uint64) uint64 {
	return atomic.AddUint64(counter, 1)
}

// parseRemoteIP extracts and normalizes the address portion of an
// http.Request.RemoteAddr for a db.IsBanned lookup, collapsing IPv4
// addresses to their 4-byte form so they match however an admin's BanIP
// request encoded them.
func parseRemoteIP(remoteAddr string) net.IP {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
