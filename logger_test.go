package gecs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gecs/backend"
	"github.com/gogpu/gecs/backend/native"
	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/job"
)

// syncBuffer is a bytes.Buffer safe for handlers written from workers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs routes the package logger into a buffer for the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	buf := &syncBuffer{}
	SetLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return buf
}

func TestSetLoggerSpreadsToSubpackages(t *testing.T) {
	buf := captureLogs(t)

	e := newEngine(t, WithMirrorMinSize(16))
	quad, vp := setupQuad(t, e)
	tick(t, e)

	// Eight vertices outgrow the first data buffer.
	verts := make([]vec4, 8)
	if err := SetList(e, quad, "VertexPosition", verts); err != nil {
		t.Fatal(err)
	}
	if err := e.ResizeViewport(vp, 32, 32); err != nil {
		t.Fatal(err)
	}
	tick(t, e)

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer instance.Destroy()
	opened, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer opened.Device.Destroy()
	dev, err := native.NewDevice(opened.Device, opened.Queue)
	if err != nil {
		t.Fatal(err)
	}
	dev.Close()

	out := buf.String()
	for _, want := range []string{
		"gecs: job graph rebuilt",
		"schedule: running job",
		"mirror: buffer grown",
		"pipeline: built",
		"pipeline: render target recreated",
		"native: device wrapped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log is missing %q", want)
		}
	}
}

func TestSetLoggerNilSilencesEngine(t *testing.T) {
	buf := captureLogs(t)
	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) left an enabled logger")
	}

	e := newEngine(t)
	registerTransforms(t, e)
	tick(t, e)
	if out := buf.String(); out != "" {
		t.Errorf("silenced engine logged: %s", out)
	}
}

func TestWithLoggerOverridesPackageLogger(t *testing.T) {
	pkg := captureLogs(t)
	var own syncBuffer
	e := newEngine(t, WithLogger(slog.New(slog.NewTextHandler(&own, nil))))
	if _, err := e.CreateViewport(8, 8, 1); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(own.String(), "viewport created") {
		t.Errorf("WithLogger output = %q", own.String())
	}
	if strings.Contains(pkg.String(), "viewport created") {
		t.Error("engine event went to the package logger despite WithLogger")
	}
}

func TestJobLoggerCarriesJobName(t *testing.T) {
	var buf syncBuffer
	e := newEngine(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	registerTypes(t, e, component.Type{Name: "Note", Size: 16})
	err := e.Register(&job.Descriptor{
		Name:   "note",
		Kind:   job.KindUpdate,
		Access: []job.Access{job.W("Note")},
		Run: func(_ context.Context, c *job.Context) error {
			c.Logger.Info("noted", "tick", c.Tick)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	tick(t, e)
	if out := buf.String(); !strings.Contains(out, "job=note") || !strings.Contains(out, "noted") {
		t.Errorf("job log = %q", out)
	}
}

// TestSetLoggerConcurrentWithTick swaps the logger while ticks run on
// worker goroutines.
func TestSetLoggerConcurrentWithTick(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	e := newEngine(t)
	setupQuad(t, e)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			SetLogger(slog.New(slog.NewTextHandler(&syncBuffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})))
			SetLogger(nil)
		}
	}()
	for range 20 {
		tick(t, e)
	}
	wg.Wait()
}

func BenchmarkTickSilent(b *testing.B) {
	e, err := New(WithDevice(backend.NewSoftwareDevice()))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := e.Tick(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}
