// Command gecsdemo runs a headless gecs scene: spinning quads updated by a
// Lua job and drawn into one render target per viewport. The quads come
// from the manifest; -quads adds more on an inner circle.
//
// Usage:
//
//	gecsdemo [-config gecsdemo.toml] [-manifest scene.yaml] [-ticks n] [-profile cpu|mem]
package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/profile"

	"github.com/gogpu/gecs"
	"github.com/gogpu/gecs/config"
)

//go:embed assets
var assets embed.FS

// transform matches the Transform and LocalToWorld layouts of the scene.
type transform struct {
	Position [3]float32
	Scale    float32
}

type vertex [4]float32

func main() {
	var (
		cfgPath  = flag.String("config", "", "TOML configuration file")
		manifest = flag.String("manifest", "", "YAML manifest (overrides run.manifest)")
		ticks    = flag.Int("ticks", -1, "ticks to run (overrides run.ticks)")
		backend  = flag.String("backend", "", "device backend (overrides engine.backend)")
		quads    = flag.Int("quads", 0, "extra quads to spawn besides the manifest entities")
		prof     = flag.String("profile", "", "write a cpu or mem profile to the working directory")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatal(err)
		}
	}
	if *manifest != "" {
		cfg.Run.Manifest = *manifest
	}
	if *ticks >= 0 {
		cfg.Run.Ticks = *ticks
	}
	if *backend != "" {
		cfg.Engine.Backend = *backend
	}

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		log.Fatalf("unknown profile %q: want cpu or mem", *prof)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, *quads); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, quads int) error {
	logger, err := cfg.Logging.Logger(os.Stderr)
	if err != nil {
		return err
	}
	gecs.SetLogger(logger)

	format, err := cfg.TargetFormat()
	if err != nil {
		return err
	}
	e, err := gecs.New(
		gecs.WithBackend(cfg.Engine.Backend),
		gecs.WithWorkers(cfg.Engine.Workers),
		gecs.WithMirrorMinSize(cfg.Engine.MirrorMinSize),
		gecs.WithEntityCapacity(cfg.Engine.EntityCapacity),
		gecs.WithTargetFormat(format),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	m, err := loadManifest(cfg.Run.Manifest)
	if err != nil {
		return err
	}
	if err := e.Apply(m); err != nil {
		return fmt.Errorf("apply manifest: %w", err)
	}
	if _, err := e.CreateViewport(cfg.Viewport.Width, cfg.Viewport.Height, cfg.Viewport.Scale); err != nil {
		return err
	}
	if err := spawnQuads(e, quads); err != nil {
		return err
	}

	var ticker *time.Ticker
	if cfg.Run.TickRate > 0 {
		ticker = time.NewTicker(cfg.Run.TickRate)
		defer ticker.Stop()
	}
	failures := 0
	for range cfg.Run.Ticks {
		var report *gecs.Report
		if ticker != nil {
			report, err = e.Step(ctx, cfg.Run.TickRate)
		} else {
			report, err = e.Tick(ctx)
		}
		if err != nil {
			return err
		}
		if report.Err() != nil {
			failures++
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}

	s := e.Stats()
	logger.Info("gecsdemo: done",
		"device", e.Device().Name(),
		"ticks", s.Ticks,
		"entities", s.Entities,
		"jobs", s.Jobs,
		"pipelines", s.Pipelines,
		"failed_ticks", failures,
		"uploads", s.Mirror.Uploads,
		"reallocations", s.Mirror.Reallocations,
		"bytes_uploaded", s.Mirror.BytesUploaded)
	return nil
}

// loadManifest reads path from disk, or the embedded scene when path is empty.
func loadManifest(path string) (*config.Manifest, error) {
	if path != "" {
		return config.LoadManifest(path)
	}
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		return nil, err
	}
	return config.LoadManifestFS(sub, "scene.yaml")
}

// spawnQuads lays n extra quads out on a circle inside the manifest ones.
func spawnQuads(e *gecs.Engine, n int) error {
	const size = 0.08
	corners := []vertex{
		{-size, -size, 0, 1},
		{size, -size, 0, 1},
		{-size, size, 0, 1},
		{size, size, 0, 1},
	}
	for i := range n {
		ent, err := e.Spawn()
		if err != nil {
			return err
		}
		a := 2 * math.Pi * float64(i) / float64(max(n, 1))
		t := transform{
			Position: [3]float32{float32(0.3 * math.Cos(a)), float32(0.3 * math.Sin(a)), 0},
			Scale:    1 + float32(i%3)*0.25,
		}
		if err := gecs.Set(e, ent, "Transform", t); err != nil {
			return err
		}
		if err := gecs.SetList(e, ent, "VertexPosition", corners); err != nil {
			return err
		}
	}
	return nil
}
