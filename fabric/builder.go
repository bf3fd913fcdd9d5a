package fabric

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gbxfabric/fabric/atomicmem"
	"github.com/gbxfabric/fabric/ports"
)

// PortSpec enumerates which ports one service needs and their sizes. A
// zero-value field (false / 0) means the service has no port of that kind.
// Grounded on kernel/threads/sab/init.go's SABInitializer, which walks a
// declarative list of regions to size and place them before anything is
// written; here the declarative list is per-service rather than global.
type PortSpec struct {
	ServiceName string
	Kind        EndpointKind

	LosslessCmdCapacity   uint32 // MsgRing record-area bytes, 0 = no lossless cmd port
	CoalesceCmdCapacity   uint32 // Mailbox cell bytes (8-byte envelope + payload), 0 = no coalescing cmd port
	BesteffortCmdCapacity uint32 // MsgRing record-area bytes, 0 = no best-effort cmd port
	RepsCapacity          uint32 // reply MsgRing record-area bytes, 0 = no reply port

	FrameSlots bool // wire a frame slot pool (8 x 128 KiB, per the external interface)
	AudioSlots bool // wire an audio slot pool (16 x 32 KiB)
}

// regionPlan is one not-yet-written region: its eventual directory entry
// plus enough bookkeeping to initialize it once a Mem exists.
type regionPlan struct {
	entry    RegionEntry
	capacity uint32 // for IndexRing: slot count; for SlotPool IndexRings, same
}

// servicePlan captures one service's resolved region IDs for every port it
// declared, by PortSpec port slot index (see layout.go's Port* constants).
type servicePlan struct {
	spec      PortSpec
	regionIDs [MaxPortsPerEndpoint]int // index into Plan.regions, -1 if unused
}

// Plan is the fully computed, not-yet-materialized layout for a fabric
// image: every region's offset/length/align and every endpoint's port
// bindings, plus the total buffer size the caller must allocate.
type Plan struct {
	regionDirOffset     uint32
	endpointTableOffset uint32
	totalSize           uint32

	regions  []regionPlan
	services []servicePlan

	doorbellsRegionID int
	metricsRegionID   int
	genCursor         uint32
}

// TotalSize is the byte length the backing Mem must be at least as large as
// before calling Populate.
func (p *Plan) TotalSize() uint32 { return p.totalSize }

// PlanFabric computes offsets and sizes for every region and endpoint
// implied by specs, without touching any memory. Doorbells (one global
// word plus one per endpoint) and a shared Metrics region are added
// automatically.
func PlanFabric(specs []PortSpec) (*Plan, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("fabric: at least one service required")
	}

	p := &Plan{
		services: make([]servicePlan, len(specs)),
	}
	for i := range p.services {
		for j := range p.services[i].regionIDs {
			p.services[i].regionIDs[j] = -1
		}
		p.services[i].spec = specs[i]
	}

	regionCount := uint32(2) // doorbells + metrics
	for _, spec := range specs {
		if spec.LosslessCmdCapacity > 0 {
			regionCount++
		}
		if spec.CoalesceCmdCapacity > 0 {
			regionCount++
		}
		if spec.BesteffortCmdCapacity > 0 {
			regionCount++
		}
		if spec.RepsCapacity > 0 {
			regionCount++
		}
		if spec.FrameSlots {
			regionCount += 3
		}
		if spec.AudioSlots {
			regionCount += 3
		}
	}
	regionDirSize := regionCount * RegionDirEntrySize
	p.regionDirOffset = HeaderSize
	p.endpointTableOffset = alignUp(p.regionDirOffset+regionDirSize, AlignRingHeader)
	cursor := alignUp(p.endpointTableOffset+uint32(len(specs))*EndpointTableEntrySize, AlignRingHeader)

	place := func(kind RegionKind, length, align uint32) int {
		cursor = alignUp(cursor, align)
		id := len(p.regions)
		p.regions = append(p.regions, regionPlan{entry: RegionEntry{
			Kind:   kind,
			Offset: cursor,
			Length: length,
			Align:  align,
		}})
		cursor += length
		return id
	}

	// One shared doorbell region: word 0 is the global "did work" doorbell,
	// word 1 is the shutdown flag; each endpoint gets its own word after
	// that for a per-service wake signal.
	doorbellsLen := uint32(4*2 + 4*len(specs))
	p.doorbellsRegionID = place(RegionDoorbells, doorbellsLen, AlignRingHeader)

	// Shared metrics region: fixed observability counters followed by
	// generation tables for every slot pool declared below. The counters
	// block is sized first; generation tables are appended as slot pools
	// are placed, so compute metrics region length after the main loop and
	// patch it in at the end.
	metricsCountersLen := uint32(16) // schema_skew_drops, corruption_drops, besteffort_drops, coalesced_count
	p.metricsRegionID = place(RegionMetrics, metricsCountersLen, AlignRingHeader)
	// Reserve the generation-table bytes directly behind the counters so no
	// region placed below overlaps them.
	for _, spec := range specs {
		if spec.FrameSlots {
			cursor += FrameSlotCount * 4
		}
		if spec.AudioSlots {
			cursor += AudioSlotCount * 4
		}
	}

	for i, spec := range specs {
		sp := &p.services[i]

		if spec.LosslessCmdCapacity > 0 {
			cap := nextPowerOfTwo(spec.LosslessCmdCapacity)
			id := place(RegionMsgRing, MsgRingHeaderSizeFor(cap), AlignRingHeader)
			sp.regionIDs[PortLosslessCmds] = id
		}
		if spec.CoalesceCmdCapacity > 0 {
			id := place(RegionMailbox, MailboxRegionSizeFor(spec.CoalesceCmdCapacity), AlignRingHeader)
			sp.regionIDs[PortCoalesceCmd] = id
		}
		if spec.BesteffortCmdCapacity > 0 {
			cap := nextPowerOfTwo(spec.BesteffortCmdCapacity)
			id := place(RegionMsgRing, MsgRingHeaderSizeFor(cap), AlignRingHeader)
			sp.regionIDs[PortBesteffortCmds] = id
		}
		if spec.RepsCapacity > 0 {
			cap := nextPowerOfTwo(spec.RepsCapacity)
			id := place(RegionMsgRing, MsgRingHeaderSizeFor(cap), AlignRingHeader)
			sp.regionIDs[PortReps] = id
		}
		if spec.FrameSlots {
			slotArrayID := place(RegionSlotArray, FrameSlotCount*FrameSlotSize, AlignSlotArray)
			freeID := place(RegionIndexRing, IndexRingSizeFor(FrameSlotCount), AlignRingHeader)
			readyID := place(RegionIndexRing, IndexRingSizeFor(FrameSlotCount), AlignRingHeader)
			sp.regionIDs[PortFrameSlots] = slotArrayID
			sp.regionIDs[PortFrameFreeRing] = freeID
			sp.regionIDs[PortFrameReadyRing] = readyID
		}
		if spec.AudioSlots {
			slotArrayID := place(RegionSlotArray, AudioSlotCount*AudioSlotSize, AlignSlotArray)
			freeID := place(RegionIndexRing, IndexRingSizeFor(AudioSlotCount), AlignRingHeader)
			readyID := place(RegionIndexRing, IndexRingSizeFor(AudioSlotCount), AlignRingHeader)
			sp.regionIDs[PortAudioSlots] = slotArrayID
			sp.regionIDs[PortAudioFreeRing] = freeID
			sp.regionIDs[PortAudioReadyRing] = readyID
		}
		sp.regionIDs[PortDoorbells] = p.doorbellsRegionID
		sp.regionIDs[PortMetrics] = p.metricsRegionID
	}

	// Append per-slot-pool generation tables to the metrics region now
	// that every slot pool's size is known.
	genTableBytes := uint32(0)
	for _, sp := range p.services {
		if sp.spec.FrameSlots {
			genTableBytes += FrameSlotCount * 4
		}
		if sp.spec.AudioSlots {
			genTableBytes += AudioSlotCount * 4
		}
	}
	p.regions[p.metricsRegionID].entry.Length += genTableBytes

	if uint32(len(p.regions)) != regionCount {
		return nil, fmt.Errorf("fabric: region count mismatch in planning (internal): got %d want %d", len(p.regions), regionCount)
	}

	p.totalSize = alignUp(cursor, AlignRingHeader)
	return p, nil
}

// MsgRingHeaderSizeFor returns the total region length for a MsgRing whose
// record area holds capacity bytes.
func MsgRingHeaderSizeFor(capacity uint32) uint32 { return ports.MsgRingHeaderSize + capacity }

// MailboxRegionSizeFor returns the total region length for a Mailbox whose
// cell holds capacity bytes: the 8-byte envelope plus up to capacity-8
// payload bytes.
func MailboxRegionSizeFor(capacity uint32) uint32 { return ports.MailboxHeaderSize + capacity }

// IndexRingSizeFor returns the total region length for an IndexRing with
// room for slotCount 32-bit indices. slotCount is rounded up to a power of
// two here.
func IndexRingSizeFor(slotCount uint32) uint32 {
	return ports.IndexRingHeaderSize + nextPowerOfTwo(slotCount)*4
}

// FabricLayout is the attached, read-write view of a populated fabric
// image: every region resolved to its concrete ports.* handle, indexed by
// service name. Both the main context and worker engines build their
// Producer()/Consumer() handles from the same FabricLayout; which side
// calls which method is what makes each end's view of a port SPSC-correct.
type FabricLayout struct {
	Mem    atomicmem.Mem
	Header Header

	// BuildID is stamped fresh by Populate at construction time and never
	// written to the shared buffer; it exists purely for log correlation
	// across a respawn cycle (§7's "higher-level orchestrator may respawn
	// the service" path), the same role uuid plays for job/session ids
	// throughout the teacher's kernel module. It is never part of the
	// normative wire layout in §6.
	BuildID uuid.UUID

	byName    map[string]*ServiceRegions
	Doorbells *Doorbells
	Metrics   *Metrics
}

// ServiceRegions resolves one endpoint's port_region_ids into concrete
// ports.* objects.
type ServiceRegions struct {
	Name string
	Kind EndpointKind

	LosslessCmds   *ports.MsgRing // nil if unused
	CoalesceCmd    *ports.Mailbox
	BesteffortCmds *ports.MsgRing
	Reps           *ports.MsgRing
	FrameSlots     *ports.SlotPool
	AudioSlots     *ports.SlotPool
}

// Endpoint is the main-side name for a ServiceRegions view: main produces
// commands and consumes replies.
type Endpoint = ServiceRegions

// Service looks up a resolved service by name.
func (l *FabricLayout) Service(name string) (*ServiceRegions, bool) {
	sr, ok := l.byName[name]
	return sr, ok
}

// Populate writes the header, region directory, endpoint table, and every
// region's own header into mem, seeds slot-pool free rings, and returns
// the resolved FabricLayout. mem must be at least plan.TotalSize() bytes.
func Populate(mem atomicmem.Mem, plan *Plan) (*FabricLayout, error) {
	if mem.Size() < plan.TotalSize() {
		return nil, fmt.Errorf("fabric: mem size %d smaller than planned %d", mem.Size(), plan.TotalSize())
	}

	dirEntries := make([]RegionEntry, len(plan.regions))
	for i, r := range plan.regions {
		dirEntries[i] = r.entry
	}
	if err := WriteRegionDirectory(mem, plan.regionDirOffset, dirEntries); err != nil {
		return nil, err
	}

	endpointEntries := make([]EndpointEntry, len(plan.services))
	for i, sp := range plan.services {
		e := EndpointEntry{
			NameHash: HashServiceName(sp.spec.ServiceName),
			Kind:     sp.spec.Kind,
		}
		for slot, regionID := range sp.regionIDs {
			if regionID < 0 {
				e.PortRegionIDs[slot] = UnusedPort
			} else {
				e.PortRegionIDs[slot] = uint16(regionID)
			}
		}
		endpointEntries[i] = e
	}
	if err := WriteEndpointTable(mem, plan.endpointTableOffset, endpointEntries); err != nil {
		return nil, err
	}

	header := Header{
		Magic:                 FabricMagic,
		AbiVersion:            AbiVersion,
		TotalSize:             plan.TotalSize(),
		EndpointCount:         uint32(len(plan.services)),
		RegionCount:           uint32(len(plan.regions)),
		EndpointTableOffset:   plan.endpointTableOffset,
		RegionDirectoryOffset: plan.regionDirOffset,
	}
	if err := WriteHeader(mem, header); err != nil {
		return nil, err
	}

	for _, r := range plan.regions {
		if err := initRegion(mem, r.entry); err != nil {
			return nil, err
		}
	}

	layout := &FabricLayout{
		Mem:     mem,
		Header:  header,
		BuildID: uuid.New(),
		byName:  make(map[string]*ServiceRegions, len(plan.services)),
	}
	layout.Doorbells = &Doorbells{mem: mem, base: plan.regions[plan.doorbellsRegionID].entry.Offset, count: uint32(len(plan.services))}
	layout.Metrics = &Metrics{mem: mem, base: plan.regions[plan.metricsRegionID].entry.Offset}

	for _, sp := range plan.services {
		sr := &ServiceRegions{Name: sp.spec.ServiceName, Kind: sp.spec.Kind}
		resolve := func(regionID int) RegionEntry {
			if regionID < 0 {
				return RegionEntry{}
			}
			return plan.regions[regionID].entry
		}

		if id := sp.regionIDs[PortLosslessCmds]; id >= 0 {
			e := resolve(id)
			sr.LosslessCmds = ports.NewMsgRing(mem, e.Offset, e.Length-ports.MsgRingHeaderSize)
		}
		if id := sp.regionIDs[PortCoalesceCmd]; id >= 0 {
			e := resolve(id)
			sr.CoalesceCmd = ports.NewMailbox(mem, e.Offset, e.Length-ports.MailboxHeaderSize)
		}
		if id := sp.regionIDs[PortBesteffortCmds]; id >= 0 {
			e := resolve(id)
			sr.BesteffortCmds = ports.NewMsgRing(mem, e.Offset, e.Length-ports.MsgRingHeaderSize)
		}
		if id := sp.regionIDs[PortReps]; id >= 0 {
			e := resolve(id)
			sr.Reps = ports.NewMsgRing(mem, e.Offset, e.Length-ports.MsgRingHeaderSize)
		}
		if sp.spec.FrameSlots {
			sr.FrameSlots = buildSlotPool(mem, plan, sp, PortFrameSlots, PortFrameFreeRing, PortFrameReadyRing, FrameSlotSize, FrameSlotCount)
		}
		if sp.spec.AudioSlots {
			sr.AudioSlots = buildSlotPool(mem, plan, sp, PortAudioSlots, PortAudioFreeRing, PortAudioReadyRing, AudioSlotSize, AudioSlotCount)
		}

		layout.byName[sp.spec.ServiceName] = sr
	}

	for _, sp := range plan.services {
		sr := layout.byName[sp.spec.ServiceName]
		if sp.spec.FrameSlots {
			if err := SeedFIFOFree(mem, sr.FrameSlots, FrameSlotCount); err != nil {
				return nil, err
			}
		}
		if sp.spec.AudioSlots {
			if err := SeedFIFOFree(mem, sr.AudioSlots, AudioSlotCount); err != nil {
				return nil, err
			}
		}
	}

	return layout, nil
}

func buildSlotPool(mem atomicmem.Mem, plan *Plan, sp servicePlan, slotsPort, freePort, readyPort int, slotSize, slotCount uint32) *ports.SlotPool {
	slotEntry := plan.regions[sp.regionIDs[slotsPort]].entry
	freeEntry := plan.regions[sp.regionIDs[freePort]].entry
	readyEntry := plan.regions[sp.regionIDs[readyPort]].entry

	free := ports.NewIndexRing(mem, freeEntry.Offset, nextPowerOfTwo(slotCount))
	ready := ports.NewIndexRing(mem, readyEntry.Offset, nextPowerOfTwo(slotCount))

	// Generation tables live in the metrics region behind its 16-byte
	// counters block; nextGenBase hands out this pool's span from the
	// cursor stored on Plan.
	genBase := plan.nextGenBase(slotCount)

	return ports.NewSlotPool(mem, slotEntry.Offset, slotSize, slotCount, genBase, free, ready)
}

// nextGenBase hands out the next slotCount*4-byte span within the metrics
// region's generation-table tail, in declaration order. This mirrors how
// Populate lays out the frame pool before the audio pool for a given
// service, and earlier services before later ones.
func (p *Plan) nextGenBase(slotCount uint32) uint32 {
	base := p.regions[p.metricsRegionID].entry.Offset + 16 + p.genCursor
	p.genCursor += slotCount * 4
	return base
}

// SeedFIFOFree populates pool's free ring with 0..slotCount-1, used once at
// build time.
func SeedFIFOFree(mem atomicmem.Mem, pool *ports.SlotPool, slotCount uint32) error {
	for i := uint32(0); i < slotCount; i++ {
		ok, err := pool.Free.TryPush(i)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("fabric: free ring rejected seed index %d", i)
		}
	}
	return nil
}

func initRegion(mem atomicmem.Mem, e RegionEntry) error {
	switch e.Kind {
	case RegionMsgRing:
		return ports.InitMsgRingHeader(mem, e.Offset, e.Length-ports.MsgRingHeaderSize)
	case RegionMailbox:
		return ports.InitMailboxHeader(mem, e.Offset, e.Length-ports.MailboxHeaderSize)
	case RegionIndexRing:
		capacity := (e.Length - ports.IndexRingHeaderSize) / 4
		return ports.InitIndexRingHeader(mem, e.Offset, capacity)
	case RegionSlotArray, RegionDoorbells, RegionMetrics:
		return nil // plain byte regions, zero-valued by the backing Mem already
	default:
		return fmt.Errorf("fabric: unknown region kind %d", e.Kind)
	}
}
