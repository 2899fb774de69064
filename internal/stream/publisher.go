package stream

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gogpu/gravsim"
	"github.com/gogpu/gravsim/internal/preview"
)

// Report is the JSON form of a frame report.
type Report struct {
	Frame      uint64 `json:"frame"`
	Stage      string `json:"stage"`
	Advanced   bool   `json:"advanced"`
	Dispatches int    `json:"dispatches"`
	Swapped    bool   `json:"swapped"`
	Generation uint64 `json:"generation"`
	Waiting    string `json:"waiting,omitempty"`
	StallTicks uint64 `json:"stallTicks,omitempty"`
	Stalled    bool   `json:"stalled,omitempty"`
}

// NewReport converts a frame report.
func NewReport(r gravsim.FrameReport) Report {
	rep := Report{
		Frame:      r.Frame,
		Stage:      r.Stage.String(),
		Advanced:   r.Advanced,
		Dispatches: r.Dispatches,
		Swapped:    r.Swapped,
		Generation: r.Generation,
	}
	if r.Stall.Active() {
		rep.Waiting = r.Stall.Blocked.String()
		rep.StallTicks = r.Stall.Ticks
		rep.Stalled = r.Stall.Failed
	}
	return rep
}

// CellSource reads committed cells, e.g. *gravsim.Simulation.
type CellSource interface {
	Cells(ctx context.Context) ([]gravsim.CellRecord, error)
}

// Publisher forwards frame reports and periodic snapshots to a hub. It
// implements gravsim.FrameObserver.
type Publisher struct {
	hub    *Hub
	source CellSource
	geom   gravsim.Geometry
	every  uint64
	opts   preview.Options
}

// NewPublisher creates a publisher that sends a PNG snapshot every
// "every" frames. every == 0 disables snapshots.
func NewPublisher(hub *Hub, source CellSource, geom gravsim.Geometry, every uint64, opts preview.Options) *Publisher {
	return &Publisher{hub: hub, source: source, geom: geom, every: every, opts: opts}
}

// ObserveFrame publishes r, plus a snapshot when one is due. Nothing is
// read back while no client is connected.
func (p *Publisher) ObserveFrame(r gravsim.FrameReport) {
	if p.hub.Clients() == 0 {
		return
	}
	if err := p.hub.BroadcastJSON(NewReport(r)); err != nil {
		return
	}
	if p.every == 0 || p.source == nil || r.Frame%p.every != 0 {
		return
	}
	if err := p.publishSnapshot(context.Background()); err != nil {
		gravsim.Logger().Warn("stream: snapshot failed", "frame", r.Frame, "err", err)
	}
}

func (p *Publisher) publishSnapshot(ctx context.Context) error {
	cells, err := p.source.Cells(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := preview.EncodePNG(&buf, p.geom, cells, p.opts); err != nil {
		return err
	}
	return p.hub.BroadcastBinary(buf.Bytes())
}

// NewMux routes /ws to the hub and, when metrics is non-nil, /metrics to
// the metrics handler.
func NewMux(hub *Hub, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
