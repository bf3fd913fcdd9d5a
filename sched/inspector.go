package sched

import "github.com/gbxfabric/fabric/commands"

// InspectorState holds the most recent debug reply the kernel engine
// produced. Supplemented from original_source's inspector vertical slice
// (world/src/inspector.rs), dropped by the distilled spec but restored
// here; it is deliberately outside World, since debug snapshots are a
// side channel for tooling, not authoritative simulation state the pure
// reducers are responsible for.
type InspectorState struct {
	LastKind    commands.DebugCmdKind
	LastPayload []byte
	FrameID     uint64
}

// routeDebugReport intercepts a KernelRepDebug report before it reaches
// reduce_report, since the reducer has nothing to do with an opaque debug
// payload. Returns true if r was a debug reply and has been consumed.
func (s *Scheduler) routeDebugReport(r commands.Report) bool {
	if r.Kind != commands.ReportKernel || r.Kernel.Kind != commands.KernelRepDebug {
		return false
	}
	s.Inspector.LastKind = r.Kernel.Debug.Kind
	s.Inspector.LastPayload = r.Kernel.Debug.Payload
	s.Inspector.FrameID = r.Kernel.FrameID
	return true
}
