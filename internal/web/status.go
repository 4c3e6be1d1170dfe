package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"vectornav-ng/internal/node"
)

// SessionSource is the node session as seen by the status page.
type SessionSource interface {
	Snapshot() node.Snapshot
}

// BusStats reports in-process fan-out counters.
type BusStats interface {
	Stats() (published, dropped uint64)
}

type Status struct {
	startUnixNano int64
	static        atomic.Value // map[string]any
	session       atomic.Value // sessionHolder
	bus           atomic.Value // busHolder
	build         BuildInfo
}

// Holders keep the stored type fixed for atomic.Value.
type sessionHolder struct{ src SessionSource }

type busHolder struct{ stats BusStats }

func NewStatus() *Status {
	s := &Status{build: readBuildInfo()}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.static.Store(map[string]any{})
	return s
}

// SetStatic records configuration shown verbatim on the status page.
func (s *Status) SetStatic(info map[string]any) {
	if info != nil {
		s.static.Store(info)
	}
}

func (s *Status) SetSession(src SessionSource) {
	if src != nil {
		s.session.Store(sessionHolder{src})
	}
}

func (s *Status) SetBus(b BusStats) {
	if b != nil {
		s.bus.Store(busHolder{b})
	}
}

type BuildInfo struct {
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

func readBuildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath = bi.Main.Path
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		case "vcs.time":
			out.BuildTime = s.Value
		}
	}
	return out
}

type BusSnapshot struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

type StatusSnapshot struct {
	Service   string         `json:"service"`
	NowUTC    string         `json:"now_utc"`
	UptimeSec int64          `json:"uptime_sec"`
	Build     BuildInfo      `json:"build"`
	Config    map[string]any `json:"config"`
	Node      *node.Snapshot `json:"node,omitempty"`
	Bus       *BusSnapshot   `json:"bus,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "vectornav-ng",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Build:     s.build,
		Config:    s.static.Load().(map[string]any),
	}
	if h, ok := s.session.Load().(sessionHolder); ok {
		n := h.src.Snapshot()
		snap.Node = &n
	}
	if h, ok := s.bus.Load().(busHolder); ok {
		published, dropped := h.stats.Stats()
		snap.Bus = &BusSnapshot{Published: published, Dropped: dropped}
	}
	return snap
}
