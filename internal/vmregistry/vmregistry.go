// Package vmregistry implements the VM registry: the id → AdminVm map, the
// two published ResizableList snapshots (public and admin VM info), and
// their viewer subscriptions. The copy-on-write publication contract —
// every mutation allocates a fresh message and copies forward, so
// in-flight sends keep reading a stable snapshot — is grounded on a
// Monitor.metrics pointer-swap idiom, generalized from "one struct
// pointer" to "a resizable list with per-element update/remove".
package vmregistry

import (
	"collabvm-server/internal/channel"
	"collabvm-server/internal/recording"
	"collabvm-server/internal/screenshot"
	"collabvm-server/internal/turn"
	"collabvm-server/internal/wire"
)

// ConnID re-exports turn.ConnID for callers that only need identity.
type ConnID = turn.ConnID

// Compositor is the out-of-scope remote-desktop collaborator that decodes
// display instructions and renders screenshots.
type Compositor = screenshot.LiveCompositor

// AdminVm is one managed virtual machine.
type AdminVm struct {
	ID          uint32
	Description string
	Running     bool
	AutoStart   bool
	TurnTimeSec int
	HasVMInfo   bool // whether the VM currently publishes public info

	Channel    *channel.Channel
	Recorder   *recording.Controller
	Compositor Compositor
}

// vmSnapshot produces the (admin-info, optional public-info, optional PNG)
// tuple a "producer" calls its own — the staged record each VM contributes
// to a registry-wide refresh. Modeled as an owned value rather than a
// schema "orphan".
type vmSnapshot struct {
	admin  wire.AdminVMInfo
	public wire.VMInfo
	hasPublic bool
	thumbnail []byte
}

// Thumbnail renders an on-demand PNG snapshot from vm's live compositor, or
// nil if vm has none. Used to answer a freshly-subscribed viewer without
// waiting for the next periodic refresh.
func (vm *AdminVm) Thumbnail() []byte {
	if vm.Compositor == nil {
		return nil
	}
	return vm.Compositor.Snapshot()
}

func (vm *AdminVm) snapshot() vmSnapshot {
	connected := 0
	if vm.Channel != nil {
		connected = vm.Channel.Count()
	}
	s := vmSnapshot{
		admin: wire.AdminVMInfo{
			ID:             vm.ID,
			Description:    vm.Description,
			Running:        vm.Running,
			ConnectedUsers: connected,
		},
	}
	if vm.HasVMInfo {
		s.hasPublic = true
		s.public = wire.VMInfo{ID: vm.ID, Description: vm.Description}
	}
	if vm.Compositor != nil {
		s.thumbnail = vm.Compositor.Snapshot()
	}
	return s
}

// ResizableList publishes an immutable, generation-tagged frame built from
// a slice of typed elements. Every mutation copies the current slice
// forward into a new backing array before re-encoding, so a *Frame handed
// out by GetMessage before the mutation remains valid forever after. Every
// method is only ever called from within the owning Registry's
// guard.Guard strand, so ResizableList carries no lock of its own.
type ResizableList[L any] struct {
	elements   []L
	generation uint64
	encode     func(generation uint64, elements []L) []byte
	frame      []byte
}

// NewResizableList creates an empty list using encode to build the wire
// frame on every mutation.
func NewResizableList[L any](encode func(uint64, []L) []byte) *ResizableList[L] {
	l := &ResizableList[L]{encode: encode}
	l.rebuild()
	return l
}

func (l *ResizableList[L]) rebuild() {
	l.generation++
	l.frame = l.encode(l.generation, l.elements)
}

// Add appends e and republishes.
func (l *ResizableList[L]) Add(e L) {
	next := make([]L, len(l.elements)+1)
	copy(next, l.elements)
	next[len(next)-1] = e
	l.elements = next
	l.rebuild()
}

// RemoveFirst removes the first element matching pred and republishes.
// Reports whether an element was removed.
func (l *ResizableList[L]) RemoveFirst(pred func(L) bool) bool {
	for i, e := range l.elements {
		if pred(e) {
			next := make([]L, 0, len(l.elements)-1)
			next = append(next, l.elements[:i]...)
			next = append(next, l.elements[i+1:]...)
			l.elements = next
			l.rebuild()
			return true
		}
	}
	return false
}

// UpdateElement replaces the first element matching pred with e (or
// appends e if nothing matches) and republishes.
func (l *ResizableList[L]) UpdateElement(pred func(L) bool, e L) {
	next := make([]L, len(l.elements))
	copy(next, l.elements)
	for i, existing := range next {
		if pred(existing) {
			next[i] = e
			l.elements = next
			l.rebuild()
			return
		}
	}
	next = append(next, e)
	l.elements = next
	l.rebuild()
}

// Reset replaces the entire element set with elements and republishes.
func (l *ResizableList[L]) Reset(elements []L) {
	next := make([]L, len(elements))
	copy(next, elements)
	l.elements = next
	l.rebuild()
}

// GetMessage returns the current published frame by reference. The
// returned slice must never be mutated by the caller; it may be shared by
// many concurrent broadcasts.
func (l *ResizableList[L]) GetMessage() []byte {
	return l.frame
}

// Elements returns a copy of the current element slice.
func (l *ResizableList[L]) Elements() []L {
	out := make([]L, len(l.elements))
	copy(out, l.elements)
	return out
}

// Registry owns every AdminVm plus the two published lists and their
// subscriber sets. All mutation happens on the goroutine that dispatches
// into the owning guard.Guard[*Registry]; Registry itself holds no locks
// beyond what ResizableList and channel.Channel already provide.
type Registry struct {
	vms map[uint32]*AdminVm

	PublicList *ResizableList[wire.VMInfo]
	AdminList  *ResizableList[wire.AdminVMInfo]

	vmListViewers      map[ConnID]struct{}
	adminVMListViewers map[ConnID]struct{}

	// BroadcastToViewers sends frame to every connection in viewers. Wired
	// by the owner (internal/facade) so this package never touches
	// connection internals directly.
	BroadcastToViewers func(viewers map[ConnID]struct{}, frame []byte)

	pendingUpdates int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		vms:                make(map[uint32]*AdminVm),
		PublicList:         NewResizableList(encodePublicList),
		AdminList:          NewResizableList(encodeAdminList),
		vmListViewers:      make(map[ConnID]struct{}),
		adminVMListViewers: make(map[ConnID]struct{}),
	}
}

func encodePublicList(gen uint64, elems []wire.VMInfo) []byte {
	return wire.EncodeMessage(wire.VMInfoList{Generation: gen, VMs: elems})
}

func encodeAdminList(gen uint64, elems []wire.AdminVMInfo) []byte {
	return wire.EncodeMessage(wire.AdminVMInfoList{Generation: gen, VMs: elems})
}

// AddVM registers vm.
func (r *Registry) AddVM(vm *AdminVm) {
	r.vms[vm.ID] = vm
}

// RemoveVM unregisters and returns the VM (its channel should be Clear()ed
// by the caller before/after removal).
func (r *Registry) RemoveVM(id uint32) (*AdminVm, bool) {
	vm, ok := r.vms[id]
	if !ok {
		return nil, false
	}
	delete(r.vms, id)
	r.PublicList.RemoveFirst(func(e wire.VMInfo) bool { return e.ID == id })
	r.AdminList.RemoveFirst(func(e wire.AdminVMInfo) bool { return e.ID == id })
	return vm, true
}

// GetVM looks up a VM by id.
func (r *Registry) GetVM(id uint32) (*AdminVm, bool) {
	vm, ok := r.vms[id]
	return vm, ok
}

// AllVMs returns every registered VM.
func (r *Registry) AllVMs() []*AdminVm {
	out := make([]*AdminVm, 0, len(r.vms))
	for _, vm := range r.vms {
		out = append(out, vm)
	}
	return out
}

// SubscribeVMList adds conn to the public VM-list viewer set. Reports
// whether it was newly added.
func (r *Registry) SubscribeVMList(conn ConnID) bool {
	if _, already := r.vmListViewers[conn]; already {
		return false
	}
	r.vmListViewers[conn] = struct{}{}
	return true
}

// UnsubscribeVMList removes conn from both viewer sets (used on
// disconnect and on explicit server-config-hidden).
func (r *Registry) UnsubscribeVMList(conn ConnID) {
	delete(r.vmListViewers, conn)
	delete(r.adminVMListViewers, conn)
}

// SubscribeAdminVMList adds conn to the admin VM-list viewer set.
func (r *Registry) SubscribeAdminVMList(conn ConnID) bool {
	if _, already := r.adminVMListViewers[conn]; already {
		return false
	}
	r.adminVMListViewers[conn] = struct{}{}
	return true
}

// UpdateSingleVM edits one VM's published entries in place and broadcasts
// only the affected lists — the single-update fast path.
func (r *Registry) UpdateSingleVM(id uint32) {
	vm, ok := r.vms[id]
	if !ok {
		return
	}
	snap := vm.snapshot()
	r.AdminList.UpdateElement(func(e wire.AdminVMInfo) bool { return e.ID == id }, snap.admin)
	if snap.hasPublic {
		r.PublicList.UpdateElement(func(e wire.VMInfo) bool { return e.ID == id }, snap.public)
	} else {
		r.PublicList.RemoveFirst(func(e wire.VMInfo) bool { return e.ID == id })
	}

	if r.BroadcastToViewers != nil {
		r.BroadcastToViewers(r.adminVMListViewers, r.AdminList.GetMessage())
		r.BroadcastToViewers(r.vmListViewers, r.PublicList.GetMessage())
		if snap.thumbnail != nil {
			frame := wire.EncodeMessage(wire.VMThumbnail{VMID: id, PNG: snap.thumbnail})
			r.BroadcastToViewers(r.vmListViewers, frame)
		}
	}
}

// UpdateAllVMs rebuilds both published lists from every registered VM's
// current snapshot and broadcasts the results plus thumbnails — the bulk
// path the periodic facade timer drives.
func (r *Registry) UpdateAllVMs() {
	adminEntries := make([]wire.AdminVMInfo, 0, len(r.vms))
	publicEntries := make([]wire.VMInfo, 0, len(r.vms))
	thumbnails := make([]wire.VMThumbnail, 0, len(r.vms))

	for id, vm := range r.vms {
		snap := vm.snapshot()
		adminEntries = append(adminEntries, snap.admin)
		if snap.hasPublic {
			publicEntries = append(publicEntries, snap.public)
		}
		if snap.thumbnail != nil {
			thumbnails = append(thumbnails, wire.VMThumbnail{VMID: id, PNG: snap.thumbnail})
		}
	}

	r.AdminList.Reset(adminEntries)
	r.PublicList.Reset(publicEntries)

	if r.BroadcastToViewers == nil {
		return
	}
	r.BroadcastToViewers(r.adminVMListViewers, r.AdminList.GetMessage())
	r.BroadcastToViewers(r.vmListViewers, r.PublicList.GetMessage())
	for _, t := range thumbnails {
		r.BroadcastToViewers(r.vmListViewers, wire.EncodeMessage(t))
	}
}
