package gravsim

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestLayoutEntriesShape(t *testing.T) {
	geom := Geometry{Width: 32, Height: 16, TileX: 8, TileY: 8}
	entries := LayoutEntries(geom)
	if err := checkLayout(entries, geom); err != nil {
		t.Fatalf("checkLayout(LayoutEntries) = %v", err)
	}
	if got := entries[1].Buffer.MinBindingSize; got != 32*16*CellSize {
		t.Errorf("previous MinBindingSize = %d, want %d", got, 32*16*CellSize)
	}
	if entries[0].StorageTexture.Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("display format = %v, want rgba8unorm", entries[0].StorageTexture.Format)
	}
}

func TestBuildBindingSetOrder(t *testing.T) {
	dev := newFakeDevice()
	b := newTestBuffers(t, dev, 16, 16)
	layout, err := NewBindingLayout(dev, b.Geometry())
	if err != nil {
		t.Fatalf("NewBindingLayout() error = %v", err)
	}
	defer layout.Release()

	set, err := BuildBindingSet(dev, layout, b)
	if err != nil {
		t.Fatalf("BuildBindingSet() error = %v", err)
	}
	defer set.Release()

	desc := dev.bindGroups[set.ID()]
	if desc.Layout != layout.ID() {
		t.Errorf("bind group layout = %d, want %d", desc.Layout, layout.ID())
	}
	if len(desc.Entries) != 3 {
		t.Fatalf("bind group has %d entries, want 3", len(desc.Entries))
	}
	if desc.Entries[0].Binding != 0 || desc.Entries[0].Texture != b.Display() {
		t.Errorf("entry 0 = %+v, want display texture at binding 0", desc.Entries[0])
	}
	if desc.Entries[1].Binding != 1 || desc.Entries[1].Buffer != b.Previous() {
		t.Errorf("entry 1 = %+v, want previous buffer at binding 1", desc.Entries[1])
	}
	if desc.Entries[2].Binding != 2 || desc.Entries[2].Buffer != b.Next() {
		t.Errorf("entry 2 = %+v, want next buffer at binding 2", desc.Entries[2])
	}
}

func TestBindingSetStaleAfterSwap(t *testing.T) {
	dev := newFakeDevice()
	b := newTestBuffers(t, dev, 8, 8)
	layout, _ := NewBindingLayout(dev, b.Geometry())
	defer layout.Release()

	set, err := BuildBindingSet(dev, layout, b)
	if err != nil {
		t.Fatalf("BuildBindingSet() error = %v", err)
	}
	if set.Stale(b) {
		t.Fatal("fresh binding set reported stale")
	}
	b.Swap()
	if !set.Stale(b) {
		t.Error("binding set not stale after swap")
	}
	b.Swap()
	if !set.Stale(b) {
		t.Error("binding set must stay stale after swapping back: generation changed")
	}

	rebuilt, err := BuildBindingSet(dev, layout, b)
	if err != nil {
		t.Fatalf("rebuild error = %v", err)
	}
	if rebuilt.Stale(b) {
		t.Error("rebuilt binding set reported stale")
	}
}

func TestBuildBindingSetLayoutMismatch(t *testing.T) {
	geom := Geometry{Width: 8, Height: 8, TileX: 8, TileY: 8}
	good := LayoutEntries(geom)

	swapped := LayoutEntries(geom)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	swapped[0].Binding, swapped[1].Binding = 0, 1

	readOnly := LayoutEntries(geom)
	readOnly[2].Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}

	oversized := LayoutEntries(geom)
	oversized[1].Buffer = &gputypes.BufferBindingLayout{
		Type:           gputypes.BufferBindingTypeStorage,
		MinBindingSize: geom.CellBufferSize() + 1,
	}

	duplicate := LayoutEntries(geom)
	duplicate[2].Binding = 1

	noCompute := LayoutEntries(geom)
	noCompute[1].Visibility = gputypes.ShaderStageFragment

	tests := []struct {
		name    string
		entries []gputypes.BindGroupLayoutEntry
	}{
		{"too few", good[:2]},
		{"kinds swapped", swapped},
		{"read-only next", readOnly},
		{"oversized", oversized},
		{"duplicate binding", duplicate},
		{"not compute visible", noCompute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			b := newTestBuffers(t, dev, 8, 8)
			layout, err := NewBindingLayoutWithEntries(dev, tt.name, tt.entries)
			if err != nil {
				t.Fatalf("NewBindingLayoutWithEntries() error = %v", err)
			}
			defer layout.Release()

			before := len(dev.bindGroups)
			_, err = BuildBindingSet(dev, layout, b)
			if !errors.Is(err, ErrLayoutMismatch) {
				t.Errorf("BuildBindingSet() error = %v, want ErrLayoutMismatch", err)
			}
			if len(dev.bindGroups) != before {
				t.Error("bind group created despite layout mismatch")
			}
		})
	}
}
