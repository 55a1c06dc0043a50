package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
)

const (
	defaultCompileTimeout  = 10 * time.Second
	defaultCompileWorkers  = 2
	defaultModuleCacheSize = 128
)

var nextEntryID atomic.Uint64

// Stats is a snapshot of the manager's counters.
type Stats struct {
	Entries     int
	Compiling   int
	Compiled    int
	Errors      int
	Compiles    int
	Flushes     int
	ModuleHits  int
	ModuleCount int
}

// compileResult is what a compile worker hands back to Poll.
type compileResult struct {
	entry   *entry
	token   uint64
	render  device.RenderPipeline
	compute device.ComputePipeline
	err     error
}

// pendingCompile tracks one in-flight async compile.
type pendingCompile struct {
	token    uint64
	deadline time.Time
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu  *sync.Mutex
	dev device.Device

	entries map[uint64]*entry
	order   []*entry

	modules         *lru.Cache[string, device.ShaderModule]
	moduleCacheSize int
	losing          bool

	validate bool
	async    bool
	timeout  time.Duration
	workers  int

	pool    worker.DynamicWorkerPool
	sem     *semaphore.Weighted
	results chan compileResult
	pending map[uint64]pendingCompile
	taskID  int

	usage   map[int]func(Entry) int
	usageID int

	currentPass         device.RenderPass
	currentCompute      device.ComputePass
	currentEntry        uint64
	currentComputeEntry uint64

	compiles   int
	flushes    int
	moduleHits int
}

// Manager deduplicates, compiles and flushes pipeline entries. Every method except the compile workers
// it starts runs on the frame thread.
type Manager interface {
	// SetDevice points the manager at dev.
	SetDevice(dev device.Device)

	// Async reports the default compile mode objects should use.
	Async() bool

	// GetOrCreate patches desc and returns the entry with the resulting signature, creating an idle one
	// if none exists. The entry is attached to desc's groups for layout reset notifications.
	//
	// Parameters:
	//   - desc: the pipeline descriptor
	//
	// Returns:
	//   - Entry: the shared or new entry
	//   - error: error if desc has no shader
	GetOrCreate(desc Descriptor) (Entry, error)

	// Compile compiles an idle or failed entry. A synchronous compile returns the compile error and leaves
	// the entry compiled or failed. An async compile marks the entry compiling and returns nil; Poll
	// applies the result. Compiling or compiled entries are left alone.
	//
	// Parameters:
	//   - e: the entry
	//   - async: whether to compile on a worker
	//
	// Returns:
	//   - error: ErrNoDevice, ErrGroupsNotCreated, or the compile error of a synchronous compile
	Compile(e Entry, async bool) error

	// Poll applies finished async compiles and fails compiles that outlived the timeout.
	//
	// Returns:
	//   - int: the number of entries whose status changed
	Poll() int

	// Cancel returns a compiling entry to idle. A late result is released.
	//
	// Parameters:
	//   - e: the entry
	Cancel(e Entry)

	// Flush recompiles e against desc after a bind group layout reset. If another entry already has the
	// new signature it is returned. If e is used by more than one object a new entry is forked for the
	// caller and e stays compiled for the others. Otherwise e is re-keyed and recompiled in place.
	//
	// Parameters:
	//   - e: the compiled entry
	//   - desc: the caller's current descriptor
	//
	// Returns:
	//   - Entry: the entry the caller should draw with
	//   - error: ErrNotCompiled if e is not compiled
	Flush(e Entry, desc Descriptor) (Entry, error)

	// SetCurrent binds e on pass unless it is already the current pipeline of that pass.
	//
	// Parameters:
	//   - pass: the open render pass
	//   - e: the compiled entry
	//
	// Returns:
	//   - bool: true if a SetPipeline was issued
	SetCurrent(pass device.RenderPass, e Entry) bool

	// SetCurrentCompute binds e on a compute pass unless it is already current.
	//
	// Parameters:
	//   - pass: the open compute pass
	//   - e: the compiled entry
	//
	// Returns:
	//   - bool: true if a SetPipeline was issued
	SetCurrentCompute(pass device.ComputePass, e Entry) bool

	// ResetCurrent forgets the current pipelines. Call it at the start of every frame.
	ResetCurrent()

	// Entries returns every entry in creation order.
	Entries() []Entry

	// Release destroys e and removes it from the cache.
	Release(e Entry)

	// Prune releases every entry for which referenced returns false.
	//
	// Returns:
	//   - int: the number of entries released
	Prune(referenced func(Entry) bool) int

	// AddUsageQuery registers a function counting the objects drawing with an entry. Every stack
	// drawing with the manager registers its own query and Usage sums them.
	//
	// Parameters:
	//   - fn: the query
	//
	// Returns:
	//   - func(): removes the query again
	AddUsageQuery(fn func(Entry) int) func()

	// Usage returns the number of objects drawing with e across every registered query.
	Usage(e Entry) int

	// FlushCount returns the number of flushes since creation.
	FlushCount() int

	// Stats returns a snapshot of the counters.
	Stats() Stats

	// Lose drops every device object without releasing it and returns every entry to idle.
	Lose()
}

var _ Manager = &manager{}

// NewManager creates a pipeline Manager.
//
// Parameters:
//   - dev: the device, or nil until SetDevice
//   - options: builder options
//
// Returns:
//   - Manager: the new manager
func NewManager(dev device.Device, options ...ManagerBuilderOption) Manager {
	m := &manager{
		mu:              &sync.Mutex{},
		dev:             dev,
		entries:         make(map[uint64]*entry),
		moduleCacheSize: defaultModuleCacheSize,
		timeout:         defaultCompileTimeout,
		workers:         defaultCompileWorkers,
		pending:         make(map[uint64]pendingCompile),
	}
	for _, opt := range options {
		opt(m)
	}

	cache, err := lru.NewWithEvict[string, device.ShaderModule](m.moduleCacheSize, m.evictModule)
	if err != nil {
		panic(fmt.Errorf("pipeline: module cache: %w", err))
	}
	m.modules = cache
	m.sem = semaphore.NewWeighted(int64(m.workers))
	m.results = make(chan compileResult, 64)
	return m
}

func (m *manager) evictModule(_ string, mod device.ShaderModule) {
	if !m.losing && mod != nil {
		mod.Release()
	}
}

func (m *manager) SetDevice(dev device.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dev = dev
}

func (m *manager) Async() bool { return m.async }

func (m *manager) AddUsageQuery(fn func(Entry) int) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usage == nil {
		m.usage = make(map[int]func(Entry) int)
	}
	m.usageID++
	id := m.usageID
	m.usage[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.usage, id)
	}
}

func (m *manager) Usage(e Entry) int {
	m.mu.Lock()
	queries := make([]func(Entry) int, 0, len(m.usage))
	for _, q := range m.usage {
		queries = append(queries, q)
	}
	m.mu.Unlock()
	n := 0
	for _, q := range queries {
		n += q(e)
	}
	return n
}

func (m *manager) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// prepare validates desc, orders its groups by index, patches it and computes its signature.
func (m *manager) prepare(desc *Descriptor) (Sources, uint64, error) {
	if err := desc.validate(); err != nil {
		return Sources{}, 0, err
	}
	desc.Groups = sortedGroups(desc.Groups)
	sources := Patch(*desc)
	return sources, signatureOf(*desc, sources), nil
}

func (m *manager) GetOrCreate(desc Descriptor) (Entry, error) {
	sources, sig, err := m.prepare(&desc)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.entries[sig]
	if !ok {
		e = &entry{id: nextEntryID.Add(1)}
		e.reset(desc, sources, sig)
		m.entries[sig] = e
		m.order = append(m.order, e)
	}
	m.mu.Unlock()

	e.attach(desc.Groups)
	if !ok {
		common.Logger().Debug("pipeline entry created", "pipeline", e.label, "signature", fmt.Sprintf("%016x", sig))
	}
	return e, nil
}

// module returns the cached shader module for src, compiling it on a miss.
func (m *manager) module(dev device.Device, label, src string) (device.ShaderModule, error) {
	if mod, ok := m.modules.Get(src); ok {
		m.moduleHits++
		return mod, nil
	}
	mod, err := dev.CreateShaderModule(label, src)
	if err != nil {
		return nil, err
	}
	m.modules.Add(src, mod)
	return mod, nil
}

// fail records a compile error on e.
func (m *manager) fail(e *entry, err error) {
	e.status = StatusError
	e.errMessage = err.Error()
	common.Logger().Error("pipeline compile failed", "pipeline", e.label, "error", err)
}

func (m *manager) Compile(en Entry, async bool) error {
	e, ok := en.(*entry)
	if !ok || e == nil {
		return fmt.Errorf("pipeline: unsupported entry implementation")
	}
	if e.status == StatusCompiling || e.status == StatusCompiled {
		return nil
	}

	m.mu.Lock()
	dev := m.dev
	m.mu.Unlock()
	if dev == nil || dev.Lost() {
		return ErrNoDevice
	}
	layouts, err := e.layouts()
	if err != nil {
		return err
	}

	if m.validate {
		for _, src := range []string{e.sources.Vertex, e.sources.Fragment, e.sources.Compute} {
			if src == "" {
				continue
			}
			if err := shader.Validate(src); err != nil {
				m.fail(e, err)
				return err
			}
		}
	}

	build, err := m.builder(dev, e, layouts)
	if err != nil {
		m.fail(e, err)
		return err
	}
	m.compiles++
	e.token++
	e.errMessage = ""

	if !async {
		res := build()
		if res.err != nil {
			m.fail(e, res.err)
			return res.err
		}
		m.apply(res)
		return nil
	}

	e.status = StatusCompiling
	m.pending[e.id] = pendingCompile{token: e.token, deadline: time.Now().Add(m.timeout)}
	m.submit(build)
	common.Logger().Debug("pipeline compile queued", "pipeline", e.label)
	return nil
}

// builder creates the shader modules on the frame thread and returns the pipeline creation step, which
// may run on a worker.
func (m *manager) builder(dev device.Device, e *entry, layouts []device.BindGroupLayout) (func() compileResult, error) {
	token := e.token + 1
	label := e.label

	if e.pipelineType == PipelineTypeCompute {
		mod, err := m.module(dev, label+".compute", e.sources.Compute)
		if err != nil {
			return nil, err
		}
		desc := device.ComputePipelineDescriptor{
			Label:      label,
			Layouts:    layouts,
			Module:     mod,
			EntryPoint: e.computeEntry,
		}
		return func() compileResult {
			p, err := dev.CreateComputePipeline(desc)
			return compileResult{entry: e, token: token, compute: p, err: err}
		}, nil
	}

	vertex, err := m.module(dev, label+".vertex", e.sources.Vertex)
	if err != nil {
		return nil, err
	}
	var fragment device.ShaderModule
	if !e.sources.Shared {
		if fragment, err = m.module(dev, label+".fragment", e.sources.Fragment); err != nil {
			return nil, err
		}
	}

	opts := e.desc.Options
	if opts.TargetFormat == 0 {
		opts.TargetFormat = dev.SurfaceFormat()
	}
	desc := device.RenderPipelineDescriptor{
		Label:              label,
		Layouts:            layouts,
		VertexModule:       vertex,
		VertexEntryPoint:   e.vertexEntry,
		FragmentModule:     fragment,
		FragmentEntryPoint: e.fragmentEntry,
		VertexBuffers:      e.desc.Vertices.Buffers,
		Primitive:          opts.primitive(),
		Target:             opts.target(),
		DepthStencil:       opts.depthStencil(),
		SampleCount:        1,
	}
	return func() compileResult {
		p, err := dev.CreateRenderPipeline(desc)
		return compileResult{entry: e, token: token, render: p, err: err}
	}, nil
}

// submit runs build on the compile pool, bounded by the semaphore.
func (m *manager) submit(build func() compileResult) {
	if m.pool == nil {
		m.pool = worker.NewDynamicWorkerPool(m.workers, 256, time.Second)
	}
	timeout := m.timeout
	m.taskID++
	m.pool.SubmitTask(worker.Task{
		ID: m.taskID,
		Do: func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := m.sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			res := build()
			m.sem.Release(1)
			m.results <- res
			return nil, res.err
		},
	})
}

// apply installs a finished compile on its entry.
func (m *manager) apply(res compileResult) {
	e := res.entry
	e.releaseHandles()
	e.renderPipeline = res.render
	e.computePipeline = res.compute
	e.status = StatusCompiled
	e.needsFlush = false
	common.Logger().Debug("pipeline compiled", "pipeline", e.label)
}

// discard releases the handles of a result nobody is waiting for.
func discard(res compileResult) {
	if res.render != nil {
		res.render.Release()
	}
	if res.compute != nil {
		res.compute.Release()
	}
}

func (m *manager) Poll() int {
	changed := 0
	for {
		select {
		case res := <-m.results:
			p, ok := m.pending[res.entry.id]
			if !ok || p.token != res.token || res.entry.token != res.token {
				discard(res)
				continue
			}
			delete(m.pending, res.entry.id)
			if res.err != nil {
				m.fail(res.entry, res.err)
			} else {
				m.apply(res)
			}
			changed++
		default:
			return changed + m.expire()
		}
	}
}

// expire fails every compile past its deadline.
func (m *manager) expire() int {
	now := time.Now()
	expired := 0
	for id, p := range m.pending {
		if now.Before(p.deadline) {
			continue
		}
		delete(m.pending, id)
		for _, e := range m.order {
			if e.id == id && e.token == p.token {
				e.token++
				m.fail(e, fmt.Errorf("compile timed out after %s", m.timeout))
				expired++
				break
			}
		}
	}
	return expired
}

func (m *manager) Cancel(en Entry) {
	e, ok := en.(*entry)
	if !ok || e == nil || e.status != StatusCompiling {
		return
	}
	delete(m.pending, e.id)
	e.token++
	e.status = StatusIdle
}

func (m *manager) Flush(en Entry, desc Descriptor) (Entry, error) {
	old, ok := en.(*entry)
	if !ok || old == nil {
		return en, fmt.Errorf("pipeline: unsupported entry implementation")
	}
	if old.status != StatusCompiled {
		return en, ErrNotCompiled
	}
	sources, sig, err := m.prepare(&desc)
	if err != nil {
		return en, err
	}

	m.mu.Lock()
	m.flushes++
	flushes := m.flushes
	existing := m.entries[sig]
	m.mu.Unlock()
	common.Logger().Warn("pipeline flush", "pipeline", old.label, "flushes", flushes)

	shared := m.Usage(old) > 1
	old.needsFlush = false
	old.detach(desc.Groups)

	if existing != nil && existing != old {
		if !shared {
			m.Release(old)
		}
		existing.attach(desc.Groups)
		return existing, m.compileQuiet(existing)
	}

	if shared {
		e := &entry{id: nextEntryID.Add(1)}
		e.reset(desc, sources, sig)
		m.mu.Lock()
		m.entries[sig] = e
		m.order = append(m.order, e)
		m.mu.Unlock()
		e.attach(desc.Groups)
		return e, m.compileQuiet(e)
	}

	m.mu.Lock()
	delete(m.entries, old.signature)
	old.releaseHandles()
	delete(m.pending, old.id)
	old.reset(desc, sources, sig)
	m.entries[sig] = old
	m.mu.Unlock()
	old.attach(desc.Groups)
	return old, m.compileQuiet(old)
}

// compileQuiet compiles with the default mode. Compile failures are already recorded on the entry.
func (m *manager) compileQuiet(e *entry) error {
	err := m.Compile(e, m.async)
	if errors.Is(err, ErrNoDevice) || errors.Is(err, ErrGroupsNotCreated) {
		return nil
	}
	if e.status == StatusError {
		return nil
	}
	return err
}

func (m *manager) SetCurrent(pass device.RenderPass, en Entry) bool {
	if en == nil || en.RenderPipeline() == nil {
		return false
	}
	if m.currentPass == pass && m.currentEntry == en.ID() {
		return false
	}
	pass.SetPipeline(en.RenderPipeline())
	m.currentPass = pass
	m.currentEntry = en.ID()
	return true
}

func (m *manager) SetCurrentCompute(pass device.ComputePass, en Entry) bool {
	if en == nil || en.ComputePipeline() == nil {
		return false
	}
	if m.currentCompute == pass && m.currentComputeEntry == en.ID() {
		return false
	}
	pass.SetPipeline(en.ComputePipeline())
	m.currentCompute = pass
	m.currentComputeEntry = en.ID()
	return true
}

func (m *manager) ResetCurrent() {
	m.currentPass = nil
	m.currentCompute = nil
	m.currentEntry = 0
	m.currentComputeEntry = 0
}

func (m *manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.order))
	for i, e := range m.order {
		out[i] = e
	}
	return out
}

func (m *manager) Release(en Entry) {
	e, ok := en.(*entry)
	if !ok || e == nil {
		return
	}
	m.mu.Lock()
	if m.entries[e.signature] == e {
		delete(m.entries, e.signature)
	}
	out := m.order[:0]
	for _, existing := range m.order {
		if existing != e {
			out = append(out, existing)
		}
	}
	m.order = out
	m.mu.Unlock()

	delete(m.pending, e.id)
	e.detach(append([]bind_group.BindGroup(nil), e.groups...))
	e.releaseHandles()
	e.status = StatusIdle
	e.token++
}

func (m *manager) Prune(referenced func(Entry) bool) int {
	released := 0
	for _, e := range m.Entries() {
		if !referenced(e) {
			m.Release(e)
			released++
		}
	}
	if released > 0 {
		common.Logger().Debug("pipelines pruned", "released", released)
	}
	return released
}

func (m *manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Entries:     len(m.order),
		Compiles:    m.compiles,
		Flushes:     m.flushes,
		ModuleHits:  m.moduleHits,
		ModuleCount: m.modules.Len(),
	}
	for _, e := range m.order {
		switch e.status {
		case StatusCompiling:
			s.Compiling++
		case StatusCompiled:
			s.Compiled++
		case StatusError:
			s.Errors++
		}
	}
	return s
}

func (m *manager) Lose() {
	m.mu.Lock()
	m.dev = nil
	entries := append([]*entry(nil), m.order...)
	m.mu.Unlock()

	for _, e := range entries {
		e.lose()
	}
	m.pending = make(map[uint64]pendingCompile)
	m.losing = true
	m.modules.Purge()
	m.losing = false
	m.ResetCurrent()
	common.Logger().Info("pipeline manager lost device", "entries", len(entries))
}
