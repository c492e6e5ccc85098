package gecs

import (
	"log/slog"

	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/mirror"
)

// Option configures an Engine during creation.
//
// Example:
//
//	// Best available device, default settings
//	e, err := gecs.New()
//
//	// Injected device and a fixed worker count
//	e, err := gecs.New(gecs.WithDevice(dev), gecs.WithWorkers(4))
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	device         gpucore.Device
	backend        string
	workers        int
	logger         *slog.Logger
	mirrorMinSize  uint64
	targetFormat   gpucore.TextureFormat
	entityCapacity int
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		mirrorMinSize:  mirror.DefaultMinSize,
		targetFormat:   gpucore.TextureFormatRGBA8Unorm,
		entityCapacity: 1024,
	}
}

// WithDevice injects the device the engine draws with. The engine does not
// close an injected device.
func WithDevice(d gpucore.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithBackend opens the named backend (see package backend) instead of the
// best available one. Ignored when WithDevice is given.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithWorkers sets the number of goroutines running update jobs.
// Zero or less uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithLogger sets the logger handed to jobs and used for engine events.
// It defaults to the package logger (see SetLogger).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMirrorMinSize sets the initial GPU buffer size of every component
// mirror in bytes.
func WithMirrorMinSize(bytes uint64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.mirrorMinSize = bytes
		}
	}
}

// WithTargetFormat sets the color format of render targets whose target
// job does not name one.
func WithTargetFormat(f gpucore.TextureFormat) Option {
	return func(o *options) {
		if f != 0 {
			o.targetFormat = f
		}
	}
}

// WithEntityCapacity preallocates room for n entities.
func WithEntityCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.entityCapacity = n
		}
	}
}
