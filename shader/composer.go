// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/polytope/internal/cache"
	"github.com/gogpu/polytope/params"
	"github.com/gogpu/polytope/strategy"
	"github.com/gogpu/wgpu/hal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultProgramCacheSize is the number of linked programs kept when
// ComposerConfig.ProgramCacheSize is zero.
const DefaultProgramCacheSize = 32

const tracerName = "github.com/gogpu/polytope/shader"

// Stage identifies a shader stage.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// StageKey identifies a compiled stage. The vertex stage is shared and keyed
// by Stage alone.
type StageKey struct {
	Stage      Stage
	Geometry   string
	Projection string
}

// ProgramKey identifies a linked program.
type ProgramKey struct {
	Geometry   string
	Projection string
}

// Backend creates and destroys GPU objects for the composer.
type Backend interface {
	CreateShaderModule(label string, spirv []uint32) (hal.ShaderModule, error)
	DestroyShaderModule(m hal.ShaderModule)
	CreatePipeline(label string, vs, fs hal.ShaderModule) (hal.RenderPipeline, error)
	DestroyPipeline(p hal.RenderPipeline)
}

// Program is a linked geometry/projection pair.
type Program struct {
	Geometry   string
	Projection string

	pipeline hal.RenderPipeline
	slots    map[string]params.Slot
	source   string
}

// Pipeline returns the render pipeline.
func (p *Program) Pipeline() hal.RenderPipeline { return p.pipeline }

// Slot returns the uniform location of name. Parameters the program never
// reads have no slot.
func (p *Program) Slot(name string) (params.Slot, bool) {
	s, ok := p.slots[name]
	return s, ok
}

// Source returns the assembled fragment source.
func (p *Program) Source() string { return p.source }

// ComposerConfig configures a Composer.
type ComposerConfig struct {
	Geometries  *strategy.Registry
	Projections *strategy.Registry
	Schema      *params.Schema

	// Template is the fragment template. Defaults to DefaultTemplate().
	Template string

	// Compiler defaults to NagaCompiler.
	Compiler Compiler

	Backend Backend
	Logger  *slog.Logger

	// ProgramCacheSize limits cached programs. Zero means
	// DefaultProgramCacheSize.
	ProgramCacheSize int
}

// Composer assembles, compiles and links shader programs from registered
// strategies, and caches the results.
//
// Composer is safe for concurrent use.
type Composer struct {
	geoms    *strategy.Registry
	projs    *strategy.Registry
	schema   *params.Schema
	template string
	prelude  string
	compiler Compiler
	logger   *slog.Logger
	tracer   trace.Tracer

	// mu serializes builds. Cache release callbacks run with mu held.
	mu       sync.Mutex
	backend  Backend
	released bool
	stages   *cache.Cache[StageKey, hal.ShaderModule]
	programs *cache.Cache[ProgramKey, *Program]
}

// NewComposer validates cfg and returns a composer with empty caches.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	switch {
	case cfg.Geometries == nil || cfg.Geometries.Role() != strategy.RoleGeometry:
		return nil, errors.New("shader: geometry registry required")
	case cfg.Projections == nil || cfg.Projections.Role() != strategy.RoleProjection:
		return nil, errors.New("shader: projection registry required")
	case cfg.Schema == nil:
		return nil, errors.New("shader: schema required")
	case cfg.Backend == nil:
		return nil, errors.New("shader: backend required")
	}

	template := cfg.Template
	if template == "" {
		template = DefaultTemplate()
	}
	if err := CheckTemplate(template); err != nil {
		return nil, err
	}
	compiler := cfg.Compiler
	if compiler == nil {
		compiler = NagaCompiler{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.ProgramCacheSize
	if size <= 0 {
		size = DefaultProgramCacheSize
	}

	c := &Composer{
		geoms:    cfg.Geometries,
		projs:    cfg.Projections,
		schema:   cfg.Schema,
		template: template,
		prelude:  Prelude(cfg.Schema),
		compiler: compiler,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		backend:  cfg.Backend,
	}
	c.stages = cache.New(0, func(_ StageKey, m hal.ShaderModule) {
		c.backend.DestroyShaderModule(m)
	})
	c.programs = cache.New(size, func(k ProgramKey, p *Program) {
		c.backend.DestroyPipeline(p.pipeline)
		c.stages.Delete(StageKey{Stage: StageFragment, Geometry: k.Geometry, Projection: k.Projection})
	})
	return c, nil
}

// Program returns the linked program for the pair, building it on a cache
// miss. Unknown names fail with *strategy.UnknownStrategyError.
func (c *Composer) Program(ctx context.Context, geometry, projection string) (*Program, error) {
	_, span := c.tracer.Start(ctx, "shader.Program", trace.WithAttributes(
		attribute.String("geometry", geometry),
		attribute.String("projection", projection),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, ErrReleased
	}
	if c.backend == nil {
		return nil, ErrDetached
	}

	key := ProgramKey{Geometry: geometry, Projection: projection}
	if prog, ok := c.programs.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return prog, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	start := time.Now()
	prog, err := c.build(key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.programs.Set(key, prog)
	c.logger.Debug("shader: program linked",
		"geometry", geometry,
		"projection", projection,
		"slots", len(prog.slots),
		"duration", time.Since(start))
	return prog, nil
}

// build assembles, compiles and links one program. Caller must hold c.mu.
func (c *Composer) build(key ProgramKey) (*Program, error) {
	geom, err := c.geoms.Get(key.Geometry)
	if err != nil {
		return nil, err
	}
	proj, err := c.projs.Get(key.Projection)
	if err != nil {
		return nil, err
	}
	asm, err := Assemble(c.template, c.prelude, geom, proj)
	if err != nil {
		return nil, err
	}

	vs, err := c.stages.GetOrCreate(StageKey{Stage: StageVertex}, c.compileVertex)
	if err != nil {
		return nil, err
	}
	fragKey := StageKey{Stage: StageFragment, Geometry: key.Geometry, Projection: key.Projection}
	fs, err := c.stages.GetOrCreate(fragKey, func() (hal.ShaderModule, error) {
		return c.compileFragment(asm, key)
	})
	if err != nil {
		return nil, err
	}

	label := fmt.Sprintf("polytope-%s-%s", key.Geometry, key.Projection)
	pipeline, err := c.backend.CreatePipeline(label, vs, fs)
	if err != nil {
		c.stages.Delete(fragKey)
		return nil, &LinkError{Geometry: key.Geometry, Projection: key.Projection, Err: err}
	}

	refs := referencedParams(asm.Source)
	slots := make(map[string]params.Slot, len(refs))
	for _, name := range c.schema.Names() {
		if !refs[name] {
			continue
		}
		if s, ok := c.schema.Slot(name); ok {
			slots[name] = s
		}
	}

	return &Program{
		Geometry:   key.Geometry,
		Projection: key.Projection,
		pipeline:   pipeline,
		slots:      slots,
		source:     asm.Source,
	}, nil
}

func (c *Composer) compileVertex() (hal.ShaderModule, error) {
	words, err := c.compiler.Compile(vertexSource)
	if err != nil {
		lines := splitLines(vertexSource)
		line := errorLine(err.Error())
		return nil, &CompileError{
			Stage:   StageVertex,
			Line:    line,
			Origin:  Origin{Name: OriginVertex, Line: line},
			Excerpt: excerpt(lines, line),
			Err:     err,
		}
	}
	m, err := c.backend.CreateShaderModule("polytope-vertex", words)
	if err != nil {
		return nil, &CompileError{Stage: StageVertex, Err: err}
	}
	return m, nil
}

func (c *Composer) compileFragment(asm *Assembled, key ProgramKey) (hal.ShaderModule, error) {
	words, err := c.compiler.Compile(asm.Source)
	if err != nil {
		ce := &CompileError{
			Stage:      StageFragment,
			Geometry:   key.Geometry,
			Projection: key.Projection,
			Err:        err,
		}
		if line := errorLine(err.Error()); line > 0 {
			ce.Line = line
			ce.Origin, _ = asm.Origin(line)
			ce.Excerpt = excerpt(asm.lines, line)
		}
		return nil, ce
	}
	label := fmt.Sprintf("polytope-fs-%s-%s", key.Geometry, key.Projection)
	m, err := c.backend.CreateShaderModule(label, words)
	if err != nil {
		return nil, &CompileError{
			Stage:      StageFragment,
			Geometry:   key.Geometry,
			Projection: key.Projection,
			Err:        err,
		}
	}
	return m, nil
}

// InvalidateAll drops every cached stage and program without destroying
// them. Call it once after a GPU context is recreated, so nothing built on
// the previous device is reused.
func (c *Composer) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.programs.Forget()
	c.stages.Forget()
	c.logger.Debug("shader: caches invalidated")
}

// Detach forgets every cached handle without destroying it and unbinds the
// backend. Use it when the device that owned the handles is lost. Program
// fails with ErrDetached until SetBackend.
func (c *Composer) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.programs.Forget()
	c.stages.Forget()
	c.backend = nil
	c.logger.Debug("shader: backend detached")
}

// SetBackend binds the composer to a new backend.
func (c *Composer) SetBackend(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = b
}

// Release destroys every cached handle. The composer cannot build programs
// afterwards.
func (c *Composer) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.programs.Purge()
	c.stages.Purge()
	c.released = true
}

// CachedPrograms returns the number of cached programs.
func (c *Composer) CachedPrograms() int { return c.programs.Len() }

// CachedStages returns the number of cached compiled stages.
func (c *Composer) CachedStages() int { return c.stages.Len() }

// Schema returns the parameter schema programs are built against.
func (c *Composer) Schema() *params.Schema { return c.schema }
