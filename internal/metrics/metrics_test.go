package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gogpu/gravsim"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestObserveFrame(t *testing.T) {
	c := New()
	c.ObserveFrame(gravsim.FrameReport{Frame: 1, Stage: gravsim.StageLoading})
	c.ObserveFrame(gravsim.FrameReport{Frame: 2, Stage: gravsim.StageInit, Advanced: true, Dispatches: 1, Swapped: true, Generation: 1})
	c.ObserveFrame(gravsim.FrameReport{Frame: 3, Stage: gravsim.StageGravity, Advanced: true, Dispatches: 2, Swapped: true, Generation: 2})

	body := scrape(t, c)
	want := []string{
		"gravsim_frames_total 3",
		"gravsim_dispatches_total 3",
		"gravsim_buffer_swaps_total 2",
		"gravsim_buffer_generation 2",
		`gravsim_stage_transitions_total{stage="Init"} 1`,
		`gravsim_stage_transitions_total{stage="Gravity"} 1`,
		`gravsim_stage{stage="Gravity"} 1`,
		`gravsim_stage{stage="Init"} 0`,
		`gravsim_stage{stage="Loading"} 0`,
	}
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("metrics missing %q\n%s", w, body)
		}
	}
}

func TestObserveStall(t *testing.T) {
	c := New()
	c.ObserveFrame(gravsim.FrameReport{
		Frame: 1,
		Stage: gravsim.StageInit,
		Stall: gravsim.Stall{
			Current: gravsim.StageInit,
			Blocked: gravsim.StageGravity,
			Ticks:   7,
			Failed:  true,
			Err:     errors.New("compile failed"),
		},
	})

	body := scrape(t, c)
	for _, w := range []string{"gravsim_stall_ticks 7", "gravsim_stalled_permanently 1"} {
		if !strings.Contains(body, w) {
			t.Errorf("metrics missing %q", w)
		}
	}
}

func TestCollectorIsFrameObserver(t *testing.T) {
	var _ gravsim.FrameObserver = New()
}
