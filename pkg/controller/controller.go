// Package controller implements the control-thread side of the audio
// engine: it owns processor instances, parameter values, and audio
// buffers, walks the graph's topology to build a render plan whenever
// the graph changes, and hands that plan to the render thread over a
// message bridge. Nothing in this package runs on the audio thread.
package controller

import (
	"fmt"

	"github.com/justyntemme/audiograph/pkg/framework/debug"
	"github.com/justyntemme/audiograph/pkg/graph"
	"github.com/justyntemme/audiograph/pkg/paramvalue"
	"github.com/justyntemme/audiograph/pkg/plan"
	"github.com/justyntemme/audiograph/pkg/processor"
	"github.com/justyntemme/audiograph/pkg/registry"
)

// Config is the fixed engine configuration a Controller is built with.
type Config struct {
	SampleRate float64
	BlockSize  int
}

// PlanSender hands a finished render plan to the render thread and
// drains whatever plans the render thread has since retired. The
// bridge package's duplex queue pair implements this; tests can
// substitute a fake.
type PlanSender interface {
	Send(p *plan.Plan) error
	DrainRetired() []*plan.Plan
}

type nodeCache struct {
	processorKey     registry.Key
	paramValueKeys   map[string]registry.Key
	audioOutputBufs  map[string][]registry.Key
	allocatedBuffers map[registry.Key]struct{}
	renderOps        []plan.RenderOp
}

func newNodeCache(processorKey registry.Key, paramValueKeys map[string]registry.Key) *nodeCache {
	return &nodeCache{
		processorKey:     processorKey,
		paramValueKeys:   paramValueKeys,
		audioOutputBufs:  make(map[string][]registry.Key),
		allocatedBuffers: make(map[registry.Key]struct{}),
	}
}

func (nc *nodeCache) paramKey(port string) (registry.Key, bool) {
	k, ok := nc.paramValueKeys[port]
	return k, ok
}

func (nc *nodeCache) outputBuffers(port string) ([]registry.Key, bool) {
	bufs, ok := nc.audioOutputBufs[port]
	return bufs, ok
}

// updateContext tracks per-update bookkeeping: how many downstream
// connections still reference each node's output, and which buffers are
// currently unclaimed and available for reuse.
type updateContext struct {
	destinationCounts map[graph.NodeRef]int
	freeBuffers       map[registry.Key]struct{}
}

func newUpdateContext(topology graph.Topology, freeBuffers []registry.Key) *updateContext {
	counts := make(map[graph.NodeRef]int, len(topology.DestinationCounts))
	for ref, n := range topology.DestinationCounts {
		counts[ref] = n
	}
	free := make(map[registry.Key]struct{}, len(freeBuffers))
	for _, key := range freeBuffers {
		free[key] = struct{}{}
	}
	return &updateContext{destinationCounts: counts, freeBuffers: free}
}

func (c *updateContext) addFree(keys map[registry.Key]struct{}) {
	for k := range keys {
		c.freeBuffers[k] = struct{}{}
	}
}

func (c *updateContext) removeFree(keys map[registry.Key]struct{}) {
	for k := range keys {
		delete(c.freeBuffers, k)
	}
}

// Controller owns every control-thread resource: processor instances,
// parameter values, audio buffers, and the per-node cache that makes
// re-running an update cheap when nothing connected to a node changed.
type Controller struct {
	sender PlanSender
	config Config

	parameters *registry.Store[*paramvalue.Value]
	factories  map[string]processor.Factory

	processors *registry.Store[processor.Processor]
	buffers    *registry.Store[plan.Buffer]
	emptyBuffer registry.Key

	nodes    map[graph.NodeRef]*nodeCache
	logger   *debug.Logger
	profiler *debug.Profiler
}

// New creates a Controller that sends finished plans to sender.
func New(sender PlanSender, config Config) *Controller {
	buffers := registry.NewStore[plan.Buffer]()
	emptyBuffer := buffers.Add(plan.Buffer{Samples: make([]float32, config.BlockSize)})

	return &Controller{
		sender:      sender,
		config:      config,
		parameters:  registry.NewStore[*paramvalue.Value](),
		factories:   make(map[string]processor.Factory),
		processors:  registry.NewStore[processor.Processor](),
		buffers:     buffers,
		emptyBuffer: emptyBuffer,
		nodes:       make(map[graph.NodeRef]*nodeCache),
		logger:      debug.Default(),
		profiler:    debug.NewProfiler(256),
	}
}

// SetLogger replaces the controller's logger. Controllers log through
// debug.Default() until this is called.
func (c *Controller) SetLogger(logger *debug.Logger) {
	c.logger = logger
}

// PerformanceReport summarizes how long recent calls to UpdateGraph
// took, for diagnostics. See debug.Profiler.Report.
func (c *Controller) PerformanceReport() string {
	return c.profiler.Report()
}

// RegisterProcessorFactory makes factory available for every class it
// declares support for. Registering a second factory for an
// already-registered class replaces the first.
func (c *Controller) RegisterProcessorFactory(factory processor.Factory) {
	for _, class := range factory.SupportedClasses() {
		c.factories[class] = factory
		c.logger.Debug("registered processor factory for class %q", class)
	}
}

// SetParamValue writes value into the current parameter cell for ref.
// The node must already have been visited by UpdateGraph at least once.
func (c *Controller) SetParamValue(ref graph.ParamRef, value float32) error {
	nc, ok := c.nodes[ref.Node]
	if !ok {
		return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", ref.Node))
	}
	key, ok := nc.paramKey(ref.Port)
	if !ok {
		return newError(KindParamValueKeyNotFound).withPort(ref.Port)
	}
	pv, ok := c.parameters.Get(key)
	if !ok {
		return newError(KindParamValueNotFound).withPort(ref.Port)
	}
	pv.Store(value)
	return nil
}

// ParamSetting is one parameter port's current value, as captured by
// Snapshot and restored by ApplyParamSnapshot.
type ParamSetting struct {
	Node  graph.NodeRef
	Port  string
	Value float32
}

// Snapshot captures the current value of every parameter port this
// controller knows about, across every node it has ever visited.
func (c *Controller) Snapshot() []ParamSetting {
	var settings []ParamSetting
	for ref, nc := range c.nodes {
		for port, key := range nc.paramValueKeys {
			pv, ok := c.parameters.Get(key)
			if !ok {
				continue
			}
			settings = append(settings, ParamSetting{Node: ref, Port: port, Value: pv.Load()})
		}
	}
	return settings
}

// ApplyParamSnapshot writes every setting back via SetParamValue,
// skipping (not failing on) settings for nodes or ports that no longer
// exist, so a snapshot taken against an older revision of the graph can
// still be applied to a newer one.
func (c *Controller) ApplyParamSnapshot(settings []ParamSetting) {
	for _, s := range settings {
		_ = c.SetParamValue(graph.ParamRef{Node: s.Node, Port: s.Port}, s.Value)
	}
}

// UpdateGraph walks g's topology, rebuilding node caches that were
// invalidated since the last call (or that have never been visited) and
// reusing caches that were not, then assembles and sends the resulting
// render plan. It never mutates g; callers that want invalidation bits
// cleared after a successful update call g.ResetInvalidation themselves.
func (c *Controller) UpdateGraph(g *graph.Graph) error {
	defer c.profiler.Start("UpdateGraph")()

	topology := g.Topology()

	free := make([]registry.Key, 0, c.buffers.Len())
	for _, key := range c.buffers.Keys() {
		if key != c.emptyBuffer {
			free = append(free, key)
		}
	}
	ctx := newUpdateContext(topology, free)

	if err := c.updateNodes(topology.Nodes, g, ctx); err != nil {
		c.logger.Error("UpdateGraph: %v", err)
		return err
	}

	p := &plan.Plan{}
	for _, ref := range topology.Nodes {
		nc, ok := c.nodes[ref]
		if !ok {
			return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", ref))
		}
		p.Ops = append(p.Ops, nc.renderOps...)
	}

	for _, bound := range g.BoundAudioOutputs() {
		nc, ok := c.nodes[bound.Output.Node]
		if !ok {
			return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", bound.Output.Node))
		}
		buffers, ok := nc.outputBuffers(bound.Output.Port)
		if !ok {
			return newError(KindAudioOutBufferNotFound).withPort(bound.Output.Port)
		}
		out := make([]registry.Key, len(buffers))
		copy(out, buffers)
		p.Ops = append(p.Ops, plan.RenderOp{Output: &plan.RenderOutput{Alias: bound.Alias, Buffers: out}})
	}

	if err := c.sender.Send(p); err != nil {
		c.logger.Error("UpdateGraph: failed to send plan: %v", err)
		return newError(KindSendFailure)
	}
	c.logger.Debug("UpdateGraph: sent plan with %d ops across %d nodes", len(p.Ops), len(topology.Nodes))
	return nil
}

// ResolveBuffer looks up the live buffer behind key. A renderer resolves
// every key in a freshly-received plan once, up front, and keeps the
// returned pointers rather than calling this per sample — exactly the
// "reference handle" pattern spec.md §4.A describes for the processor
// and buffer registries.
func (c *Controller) ResolveBuffer(key registry.Key) (*plan.Buffer, bool) {
	ref, ok := c.buffers.Ref(key)
	if !ok {
		return nil, false
	}
	return ref.Value, true
}

// ResolveProcessor looks up the live processor behind key, for the same
// once-per-plan resolution a renderer performs on ResolveBuffer.
func (c *Controller) ResolveProcessor(key registry.Key) (processor.Processor, bool) {
	return c.processors.Get(key)
}

// ProcessMessages drains every plan the render thread has retired
// since the last call and destroys them. A retired plan is one the
// render thread has already swapped out for its replacement, so
// nothing on the render thread holds a reference to it; dropping it
// here is what closes out the processor and buffer ownership that plan
// held (spec.md §4.D/§5). Must run on the control thread, and never
// blocks: draining is just dequeuing until the return queue is empty.
func (c *Controller) ProcessMessages() {
	for _, p := range c.sender.DrainRetired() {
		c.logger.Debug("ProcessMessages: retired plan with %d ops", len(p.Ops))
	}
}

func (c *Controller) updateNodes(refs []graph.NodeRef, g *graph.Graph, ctx *updateContext) error {
	for _, ref := range refs {
		_, existed := c.nodes[ref]
		if !existed {
			nc, err := c.createNode(ref, g)
			if err != nil {
				return err
			}
			c.nodes[ref] = nc
		}

		n, err := g.GetNode(ref)
		if err != nil {
			return newError(KindNodeNotFound).withNode(fmt.Sprintf("%v", ref))
		}

		if n.Invalidated() || !existed {
			if err := c.visitInvalidatedNode(ref, n, ctx); err != nil {
				return err
			}
		} else {
			if err := c.visitUnchangedNode(ref, n, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) createNode(ref graph.NodeRef, g *graph.Graph) (*nodeCache, error) {
	n, err := g.GetNode(ref)
	if err != nil {
		return nil, newError(KindNodeNotFound).withNode(fmt.Sprintf("%v", ref))
	}

	factory, ok := c.factories[n.Class()]
	if !ok {
		return nil, newError(KindProcessorFactoryNotFound).withNode(n.RefString()).withClass(n.Class())
	}
	proc, err := factory.Create(n, c.config.SampleRate)
	if err != nil || proc == nil {
		return nil, newError(KindProcessorCreationFailed).withNode(n.RefString()).withClass(n.Class())
	}
	processorKey := c.processors.Add(proc)

	paramKeys := make(map[string]registry.Key, len(n.Params()))
	for port, p := range n.Params() {
		paramKeys[port] = c.parameters.Add(paramvalue.New(p.Initial()))
	}

	return newNodeCache(processorKey, paramKeys), nil
}

func (c *Controller) visitInvalidatedNode(ref graph.NodeRef, n graph.Node, ctx *updateContext) error {
	if err := c.clearNodeCache(ref, ctx); err != nil {
		return err
	}

	paramSliceBuffers := c.allocateParamValueBuffers(n, ctx)
	paramPorts, err := c.buildParamRenderPorts(ref, n, paramSliceBuffers)
	if err != nil {
		return err
	}

	audioInputs, err := c.collectAudioInputBuffers(n)
	if err != nil {
		return err
	}
	audioOutputs := c.allocateAudioOutputBuffers(n, ctx)

	if err := c.releaseInputBuffers(n, ctx); err != nil {
		return err
	}

	return c.updateNodeCache(ref, paramSliceBuffers, paramPorts, audioInputs, audioOutputs)
}

func (c *Controller) visitUnchangedNode(ref graph.NodeRef, n graph.Node, ctx *updateContext) error {
	if err := c.releaseInputBuffers(n, ctx); err != nil {
		return err
	}
	nc, ok := c.nodes[ref]
	if !ok {
		return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", ref))
	}
	ctx.removeFree(nc.allocatedBuffers)
	return nil
}

func (c *Controller) clearNodeCache(ref graph.NodeRef, ctx *updateContext) error {
	nc, ok := c.nodes[ref]
	if !ok {
		return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", ref))
	}
	ctx.addFree(nc.allocatedBuffers)
	nc.allocatedBuffers = make(map[registry.Key]struct{})
	nc.audioOutputBufs = make(map[string][]registry.Key)
	nc.renderOps = nil
	return nil
}

// allocateParamValueBuffers allocates one slice buffer per unconnected
// parameter port; connected ports read their upstream's output buffer
// directly and need no slice of their own.
func (c *Controller) allocateParamValueBuffers(n graph.Node, ctx *updateContext) map[string]registry.Key {
	buffers := make(map[string]registry.Key)
	for port, p := range n.Params() {
		if _, connected := p.Connection(); !connected {
			buffers[port] = c.allocateBuffer(ctx)
		}
	}
	return buffers
}

func (c *Controller) buildParamRenderPorts(ref graph.NodeRef, n graph.Node, sliceBuffers map[string]registry.Key) (map[string]plan.ParamRenderPort, error) {
	ports := make(map[string]plan.ParamRenderPort, len(n.Params()))
	for port, p := range n.Params() {
		if src, connected := p.Connection(); connected {
			srcCache, ok := c.nodes[src.Node]
			if !ok {
				return nil, newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", src.Node))
			}
			buffers, ok := srcCache.outputBuffers(src.Port)
			if !ok || len(buffers) == 0 {
				return nil, newError(KindAudioOutBufferNotFound).withPort(src.Port)
			}
			ports[port] = plan.NewSourcePort(buffers[0])
			continue
		}

		sliceKey, ok := sliceBuffers[port]
		if !ok {
			return nil, newError(KindSliceBufferNotFound).withPort(port)
		}
		nc, ok := c.nodes[ref]
		if !ok {
			return nil, newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", ref))
		}
		paramKey, ok := nc.paramKey(port)
		if !ok {
			return nil, newError(KindParamValueKeyNotFound).withPort(port)
		}
		pv, ok := c.parameters.Get(paramKey)
		if !ok {
			return nil, newError(KindParamValueNotFound).withPort(port)
		}
		ports[port] = plan.NewValuePort(pv, sliceKey)
	}
	return ports, nil
}

func (c *Controller) collectAudioInputBuffers(n graph.Node) (map[string][]registry.Key, error) {
	inputs := make(map[string][]registry.Key, len(n.AudioInputs()))
	for port, p := range n.AudioInputs() {
		if src, connected := p.Connection(); connected {
			srcCache, ok := c.nodes[src.Node]
			if !ok {
				return nil, newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", src.Node))
			}
			buffers, ok := srcCache.outputBuffers(src.Port)
			if !ok {
				return nil, newError(KindAudioOutBufferNotFound).withPort(src.Port)
			}
			out := make([]registry.Key, len(buffers))
			copy(out, buffers)
			inputs[port] = out
			continue
		}

		empty := make([]registry.Key, p.Channels())
		for i := range empty {
			empty[i] = c.emptyBuffer
		}
		inputs[port] = empty
	}
	return inputs, nil
}

func (c *Controller) allocateAudioOutputBuffers(n graph.Node, ctx *updateContext) map[string][]registry.Key {
	outputs := make(map[string][]registry.Key, len(n.AudioOutputs()))
	for port, p := range n.AudioOutputs() {
		buffers := make([]registry.Key, p.Channels())
		for i := range buffers {
			buffers[i] = c.allocateBuffer(ctx)
		}
		outputs[port] = buffers
	}
	return outputs
}

func (c *Controller) updateNodeCache(ref graph.NodeRef, paramSliceBuffers map[string]registry.Key, paramPorts map[string]plan.ParamRenderPort, audioInputs, audioOutputs map[string][]registry.Key) error {
	nc, ok := c.nodes[ref]
	if !ok {
		return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", ref))
	}

	allocated := make(map[registry.Key]struct{}, len(paramSliceBuffers)+len(audioOutputs))
	for _, key := range paramSliceBuffers {
		allocated[key] = struct{}{}
	}
	for _, buffers := range audioOutputs {
		for _, key := range buffers {
			allocated[key] = struct{}{}
		}
	}
	nc.allocatedBuffers = allocated
	nc.audioOutputBufs = audioOutputs

	nc.renderOps = append(nc.renderOps, plan.RenderOp{Processor: &plan.RenderProcessor{
		Processor:    nc.processorKey,
		AudioInputs:  audioInputs,
		AudioOutputs: audioOutputs,
		Params:       paramPorts,
	}})
	return nil
}

// releaseInputBuffers decrements the destination count of every node n
// reads from — once per connected port, not once per distinct source —
// and frees a source's buffers the moment its count reaches zero. A
// source the topology never recorded a count for is treated as already
// at zero: nothing else claims it, so it is immediately releasable.
func (c *Controller) releaseInputBuffers(n graph.Node, ctx *updateContext) error {
	for _, src := range n.Sources() {
		ctx.destinationCounts[src]--
		if ctx.destinationCounts[src] <= 0 {
			srcCache, ok := c.nodes[src]
			if !ok {
				return newError(KindNodeCacheNotFound).withNode(fmt.Sprintf("%v", src))
			}
			ctx.addFree(srcCache.allocatedBuffers)
			srcCache.allocatedBuffers = make(map[registry.Key]struct{})
		}
	}
	return nil
}

func (c *Controller) allocateBuffer(ctx *updateContext) registry.Key {
	for key := range ctx.freeBuffers {
		delete(ctx.freeBuffers, key)
		return key
	}
	return c.buffers.Add(plan.Buffer{Samples: make([]float32, c.config.BlockSize)})
}
