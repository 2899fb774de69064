// Command gravsim runs the grid gravity simulation headless.
//
// It opens a compute backend, runs a number of frames, and optionally
// writes a PNG snapshot of the final state or serves a live stream:
//
//	gravsim -frames 600 -snapshot world.png
//	gravsim -backend noop -width 256 -height 256 -serve :8080
//
// While serving, /ws streams frame reports and snapshots and /metrics
// exposes Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gravsim"
	"github.com/gogpu/gravsim/backend"
	"github.com/gogpu/gravsim/gpucore"
	_ "github.com/gogpu/gravsim/gpu" // register HAL devices
	"github.com/gogpu/gravsim/internal/metrics"
	"github.com/gogpu/gravsim/internal/preview"
	"github.com/gogpu/gravsim/internal/stream"
	"github.com/gogpu/gravsim/shaders"
)

type options struct {
	backend      string
	width        uint
	height       uint
	tile         uint
	frames       int
	seed         int64
	shader       string
	snapshot     string
	snapshotSize int
	serve        string
	fps          int
	every        uint64
	verbose      bool
}

func main() {
	var o options
	flag.StringVar(&o.backend, "backend", "", "compute backend (vulkan, noop); empty picks the best available")
	flag.UintVar(&o.width, "width", 1024, "world width in cells")
	flag.UintVar(&o.height, "height", 1024, "world height in cells")
	flag.UintVar(&o.tile, "tile", 8, "workgroup tile size")
	flag.IntVar(&o.frames, "frames", 300, "frames to run; 0 runs until interrupted")
	flag.Int64Var(&o.seed, "seed", 1, "world seed")
	flag.StringVar(&o.shader, "shader", "", "WGSL file replacing the built-in gravity shader")
	flag.StringVar(&o.snapshot, "snapshot", "", "write a PNG of the final state to this file")
	flag.IntVar(&o.snapshotSize, "snapshot-size", 0, "snapshot edge length in pixels; 0 keeps one pixel per cell")
	flag.StringVar(&o.serve, "serve", "", "serve /ws and /metrics on this address")
	flag.IntVar(&o.fps, "fps", 60, "frame rate while serving")
	flag.Uint64Var(&o.every, "snapshot-every", 30, "frames between streamed snapshots")
	flag.BoolVar(&o.verbose, "v", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	gravsim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		log.Fatalf("gravsim: %v", err)
	}
}

func run(ctx context.Context, o options) error {
	dev, name, err := openDevice(o.backend)
	if err != nil {
		return err
	}
	defer dev.Close()
	info := dev.Info()
	gravsim.Logger().Info("gravsim: device opened", "backend", name, "adapter", info.Name)

	w, h, tile := uint32(o.width), uint32(o.height), uint32(o.tile)
	opts := []gravsim.Option{
		gravsim.WithWorldSize(w, h),
		gravsim.WithTileSize(tile, tile),
		gravsim.WithSeed(o.seed),
	}
	if o.shader != "" {
		src, err := os.ReadFile(o.shader)
		if err != nil {
			return fmt.Errorf("read shader: %w", err)
		}
		opts = append(opts, gravsim.WithShader(shaders.Specialize(o.shader, string(src), w, h, tile, tile)))
	}

	collector := metrics.New()
	opts = append(opts, gravsim.WithObserver(collector))

	var hub *stream.Hub
	var pub *stream.Publisher
	if o.serve != "" {
		hub = stream.NewHub()
		defer hub.Close()
		// The publisher reads from the simulation, so it is attached after New.
		opts = append(opts, gravsim.WithObserver(gravsim.FrameObserverFunc(func(r gravsim.FrameReport) {
			if pub != nil {
				pub.ObserveFrame(r)
			}
		})))
	}

	sim, err := gravsim.New(dev, opts...)
	if err != nil {
		return err
	}
	defer sim.Close()
	geom := sim.Geometry()

	if hub != nil {
		pub = stream.NewPublisher(hub, sim, geom, o.every, preview.Options{})
		srv := &http.Server{
			Addr:              o.serve,
			Handler:           stream.NewMux(hub, collector.Handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				gravsim.Logger().Error("gravsim: serve failed", "addr", o.serve, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		gravsim.Logger().Info("gravsim: serving", "addr", o.serve)
	}

	start := time.Now()
	done, err := runFrames(ctx, sim, o)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	cells, err := sim.Cells(context.Background())
	if err != nil {
		return fmt.Errorf("read cells: %w", err)
	}
	if o.snapshot != "" {
		if err := writeSnapshot(o.snapshot, geom, cells, o.snapshotSize); err != nil {
			return err
		}
	}
	printSummary(name, info.Name, geom, sim, done, elapsed, cells)
	return nil
}

func openDevice(name string) (gpucore.Device, string, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	dev, err := backend.Open(name)
	return dev, name, err
}

// runFrames ticks as fast as possible, or at o.fps while serving.
func runFrames(ctx context.Context, sim *gravsim.Simulation, o options) (int, error) {
	if o.serve == "" && o.frames > 0 {
		return sim.Run(ctx, o.frames)
	}
	fps := max(o.fps, 1)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	done := 0
	for o.frames == 0 || done < o.frames {
		select {
		case <-ctx.Done():
			return done, ctx.Err()
		case <-ticker.C:
		}
		if _, err := sim.Frame(ctx); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func writeSnapshot(path string, geom gravsim.Geometry, cells []gravsim.CellRecord, size int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	opts := preview.Options{Width: size, Height: size}
	if err := preview.EncodePNG(f, geom, cells, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	gravsim.Logger().Info("gravsim: snapshot written", "path", path)
	return nil
}

func printSummary(backendName, adapter string, geom gravsim.Geometry, sim *gravsim.Simulation,
	frames int, elapsed time.Duration, cells []gravsim.CellRecord) {
	p := message.NewPrinter(language.English)
	counts := gravsim.CountParticles(cells)
	p.Printf("backend:    %s (%s)\n", backendName, adapter)
	p.Printf("world:      %dx%d cells, tile %dx%d\n", geom.Width, geom.Height, geom.TileX, geom.TileY)
	p.Printf("frames:     %d in %v\n", frames, elapsed.Round(time.Millisecond))
	p.Printf("stage:      %s (generation %d)\n", sim.Stage(), sim.Buffers().Generation())
	p.Printf("sand:       %d\n", counts[gravsim.ParticleSand])
	p.Printf("walls:      %d\n", counts[gravsim.ParticleWall])
	if st := sim.Orchestrator().Stalled(); st.Active() {
		p.Printf("waiting:    %s for %d ticks\n", st.Blocked, st.Ticks)
	}
}
