package gravsim

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/gravsim/gpucore"
)

func newTestRegistry(t *testing.T) (*fakeDevice, *BindingLayout, *PipelineRegistry) {
	t.Helper()
	dev := newFakeDevice()
	layout, err := NewBindingLayout(dev, Geometry{Width: 8, Height: 8, TileX: 8, TileY: 8})
	if err != nil {
		t.Fatalf("NewBindingLayout() error = %v", err)
	}
	t.Cleanup(layout.Release)
	return dev, layout, NewPipelineRegistry(dev)
}

var testShader = gpucore.ShaderSource{Label: "test", WGSL: "// test"}

func TestRegistryRegisterStartsPending(t *testing.T) {
	dev, layout, reg := newTestRegistry(t)
	dev.holdPending("init")

	h, err := reg.Register(StageInit, layout, testShader, "init")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := reg.Status(h); got != PipelineStatusPending {
		t.Errorf("Status() = %v, want Pending", got)
	}

	dev.complete("init", gpucore.PipelineStatusReady)
	if got := reg.Status(h); got != PipelineStatusReady {
		t.Errorf("Status() after compile = %v, want Ready", got)
	}
	if got, ok := reg.Handle(StageInit); !ok || got != h {
		t.Errorf("Handle(Init) = %v, %v; want %v, true", got, ok, h)
	}
	if id, ok := reg.Pipeline(h); !ok || dev.entryPointOf(id) != "init" {
		t.Errorf("Pipeline(h) = %d, %v; want init pipeline", id, ok)
	}
}

func TestRegistryRejectsDuplicateStage(t *testing.T) {
	_, layout, reg := newTestRegistry(t)
	if _, err := reg.Register(StageGravity, layout, testShader, "update_gravity"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := reg.Register(StageGravity, layout, testShader, "update_gravity")
	if !errors.Is(err, ErrStageRegistered) {
		t.Errorf("second Register() error = %v, want ErrStageRegistered", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1: compilation must be requested once", reg.Len())
	}
}

func TestRegistryRejectsLoadingStage(t *testing.T) {
	_, layout, reg := newTestRegistry(t)
	if _, err := reg.Register(StageLoading, layout, testShader, "main"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("Register(Loading) error = %v, want ErrUnknownStage", err)
	}
	if _, err := reg.Register(Stage(77), layout, testShader, "main"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("Register(77) error = %v, want ErrUnknownStage", err)
	}
}

func TestRegistryFailedIsPermanentAndLoggedOnce(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	dev, layout, reg := newTestRegistry(t)
	dev.holdPending("update_position")
	h, _ := reg.Register(StagePosition, layout, testShader, "update_position")
	dev.complete("update_position", gpucore.PipelineStatusFailed)

	for i := 0; i < 5; i++ {
		if got := reg.Status(h); got != PipelineStatusFailed {
			t.Fatalf("Status() poll %d = %v, want Failed", i, got)
		}
	}
	if err := reg.Err(h); !errors.Is(err, ErrCompilationFailed) {
		t.Errorf("Err() = %v, want ErrCompilationFailed", err)
	}
	if n := strings.Count(buf.String(), "pipeline compilation failed"); n != 1 {
		t.Errorf("compilation failure logged %d times, want 1", n)
	}
}

func TestRegistryUnknownHandle(t *testing.T) {
	_, _, reg := newTestRegistry(t)
	if got := reg.Status(PipelineHandle(9)); got != PipelineStatusPending {
		t.Errorf("Status(unknown) = %v, want Pending", got)
	}
	if got := reg.StageStatus(StageImpulse); got != PipelineStatusPending {
		t.Errorf("StageStatus(unregistered) = %v, want Pending", got)
	}
	if _, ok := reg.Pipeline(0); ok {
		t.Error("Pipeline(0) should not exist")
	}
}

func TestRegistryConcurrentStatus(t *testing.T) {
	dev, layout, reg := newTestRegistry(t)
	dev.holdPending("update_gravity")
	h, _ := reg.Register(StageGravity, layout, testShader, "update_gravity")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 16 {
				dev.complete("update_gravity", gpucore.PipelineStatusReady)
			}
			_ = reg.Status(h)
		}(i)
	}
	wg.Wait()
	if got := reg.Status(h); got != PipelineStatusReady {
		t.Errorf("Status() = %v, want Ready", got)
	}
}

func TestRegistryRelease(t *testing.T) {
	dev, layout, reg := newTestRegistry(t)
	for _, s := range []Stage{StageInit, StagePreUpdate, StageGravity} {
		if _, err := reg.Register(s, layout, testShader, s.EntryPoint()); err != nil {
			t.Fatalf("Register(%v) error = %v", s, err)
		}
	}
	reg.Release()
	if len(dev.pipelines) != 0 {
		t.Errorf("%d pipelines alive after Release, want 0", len(dev.pipelines))
	}
	if _, ok := reg.Handle(StageInit); ok {
		t.Error("Handle(Init) should not exist after Release")
	}
}
