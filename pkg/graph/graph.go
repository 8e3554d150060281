// Package graph specifies the contract the Controller consumes from the
// Graph library (topology, node/port descriptors, connection rules,
// invalidation bits) and ships a minimal in-memory implementation of
// that contract. The real Graph library is an external collaborator;
// this package exists so the Controller is runnable and testable
// end to end without depending on the Controller's own internals.
package graph

import "fmt"

// NodeRef is a stable, comparable reference to a node. Safe to use as a
// map key and to copy across goroutines.
type NodeRef struct {
	id uint32
}

// RawID returns the underlying numeric identity of ref, for code (e.g.
// session persistence) that needs to serialize a NodeRef and reconstruct
// an equivalent one later via NewNodeRef.
func (r NodeRef) RawID() uint32 { return r.id }

// NewNodeRef reconstructs a NodeRef from a raw id previously obtained
// from RawID. The ref is only valid against the same Graph instance
// that originally minted it.
func NewNodeRef(id uint32) NodeRef { return NodeRef{id: id} }

// AudioOutRef identifies one audio output port of one node.
type AudioOutRef struct {
	Node NodeRef
	Port string
}

// ParamRef identifies one parameter port of one node.
type ParamRef struct {
	Node NodeRef
	Port string
}

// AudioPortDescriptor describes the static shape of an audio port.
type AudioPortDescriptor struct {
	Channels int
}

// ParamPortDescriptor describes the static shape of a parameter port.
type ParamPortDescriptor struct {
	Initial float32
}

// NodeDescriptor is the static shape of a node: its processor class and
// its ports. Connections are established after the node is added.
type NodeDescriptor struct {
	Class        string
	AudioInputs  map[string]AudioPortDescriptor
	AudioOutputs map[string]AudioPortDescriptor
	Params       map[string]ParamPortDescriptor
}

// AudioInPort is an audio input port as seen by the Controller.
type AudioInPort interface {
	ID() string
	Channels() int
	Connection() (AudioOutRef, bool)
}

// AudioOutPort is an audio output port as seen by the Controller.
type AudioOutPort interface {
	ID() string
	Channels() int
}

// ParamPort is a parameter port as seen by the Controller.
type ParamPort interface {
	ID() string
	Initial() float32
	Connection() (AudioOutRef, bool)
}

// Node is the per-node contract the Controller consumes.
type Node interface {
	Class() string
	RefString() string
	Invalidated() bool
	Params() map[string]ParamPort
	AudioInputs() map[string]AudioInPort
	AudioOutputs() map[string]AudioOutPort
	// Sources yields one NodeRef per connected input or parameter port
	// that reads from another node's output — duplicated per connected
	// port, not deduplicated per source node, since buffer recycling
	// decrements a destination count once per consumed connection.
	Sources() []NodeRef
}

// Topology is the result of a dependency-ordered graph walk.
type Topology struct {
	// Nodes is ordered sources-first, sinks-last.
	Nodes []NodeRef
	// DestinationCounts is the number of downstream port connections
	// reading each node's outputs.
	DestinationCounts map[NodeRef]int
}

// BoundOutput is a named alias exported from the graph to the host.
type BoundOutput struct {
	Alias  string
	Output AudioOutRef
}

type audioInPort struct {
	id         string
	descriptor AudioPortDescriptor
	connection *AudioOutRef
}

func (p *audioInPort) ID() string       { return p.id }
func (p *audioInPort) Channels() int    { return p.descriptor.Channels }
func (p *audioInPort) Connection() (AudioOutRef, bool) {
	if p.connection == nil {
		return AudioOutRef{}, false
	}
	return *p.connection, true
}

type audioOutPort struct {
	id         string
	descriptor AudioPortDescriptor
}

func (p *audioOutPort) ID() string    { return p.id }
func (p *audioOutPort) Channels() int { return p.descriptor.Channels }

type paramPort struct {
	id         string
	descriptor ParamPortDescriptor
	connection *AudioOutRef
}

func (p *paramPort) ID() string      { return p.id }
func (p *paramPort) Initial() float32 { return p.descriptor.Initial }
func (p *paramPort) Connection() (AudioOutRef, bool) {
	if p.connection == nil {
		return AudioOutRef{}, false
	}
	return *p.connection, true
}

type node struct {
	name         string
	class        string
	invalidated  bool
	audioInputs  map[string]*audioInPort
	audioOutputs map[string]*audioOutPort
	params       map[string]*paramPort
}

func (n *node) Class() string      { return n.class }
func (n *node) RefString() string  { return fmt.Sprintf("Node[%s]", n.name) }
func (n *node) Invalidated() bool  { return n.invalidated }

func (n *node) Params() map[string]ParamPort {
	out := make(map[string]ParamPort, len(n.params))
	for id, p := range n.params {
		out[id] = p
	}
	return out
}

func (n *node) AudioInputs() map[string]AudioInPort {
	out := make(map[string]AudioInPort, len(n.audioInputs))
	for id, p := range n.audioInputs {
		out[id] = p
	}
	return out
}

func (n *node) AudioOutputs() map[string]AudioOutPort {
	out := make(map[string]AudioOutPort, len(n.audioOutputs))
	for id, p := range n.audioOutputs {
		out[id] = p
	}
	return out
}

func (n *node) Sources() []NodeRef {
	var refs []NodeRef
	for _, p := range n.audioInputs {
		if p.connection != nil {
			refs = append(refs, p.connection.Node)
		}
	}
	for _, p := range n.params {
		if p.connection != nil {
			refs = append(refs, p.connection.Node)
		}
	}
	return refs
}

// Graph is a minimal in-memory implementation of the Controller's Graph
// contract: a DAG of nodes connected by audio and parameter edges, with
// per-node invalidation bits and named bound outputs.
type Graph struct {
	nextID       uint32
	nodes        map[NodeRef]*node
	order        []NodeRef // insertion order, used for deterministic ties
	boundOutputs []BoundOutput
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[NodeRef]*node)}
}

// AddNode adds a new node, fresh and invalidated, and returns its ref.
func (g *Graph) AddNode(name string, descriptor NodeDescriptor) (NodeRef, error) {
	ref := NodeRef{id: g.nextID}
	g.nextID++

	n := &node{
		name:         name,
		class:        descriptor.Class,
		invalidated:  true,
		audioInputs:  make(map[string]*audioInPort, len(descriptor.AudioInputs)),
		audioOutputs: make(map[string]*audioOutPort, len(descriptor.AudioOutputs)),
		params:       make(map[string]*paramPort, len(descriptor.Params)),
	}
	for id, d := range descriptor.AudioInputs {
		n.audioInputs[id] = &audioInPort{id: id, descriptor: d}
	}
	for id, d := range descriptor.AudioOutputs {
		n.audioOutputs[id] = &audioOutPort{id: id, descriptor: d}
	}
	for id, d := range descriptor.Params {
		n.params[id] = &paramPort{id: id, descriptor: d}
	}

	g.nodes[ref] = n
	g.order = append(g.order, ref)
	return ref, nil
}

// ConnectAudio wires src to the audio input port dstPort of dstNode,
// marking dstNode invalidated.
func (g *Graph) ConnectAudio(src AudioOutRef, dstNode NodeRef, dstPort string) error {
	if _, err := g.outputPort(src); err != nil {
		return err
	}
	dst, ok := g.nodes[dstNode]
	if !ok {
		return fmt.Errorf("graph: node not found: %v", dstNode)
	}
	in, ok := dst.audioInputs[dstPort]
	if !ok {
		return fmt.Errorf("graph: audio input port %q not found on %s", dstPort, dst.RefString())
	}
	ref := src
	in.connection = &ref
	dst.invalidated = true
	return nil
}

// ConnectParam wires src (an audio output) to the parameter port dstPort
// of dstNode, marking dstNode invalidated.
func (g *Graph) ConnectParam(src AudioOutRef, dstNode NodeRef, dstPort string) error {
	if _, err := g.outputPort(src); err != nil {
		return err
	}
	dst, ok := g.nodes[dstNode]
	if !ok {
		return fmt.Errorf("graph: node not found: %v", dstNode)
	}
	p, ok := dst.params[dstPort]
	if !ok {
		return fmt.Errorf("graph: param port %q not found on %s", dstPort, dst.RefString())
	}
	ref := src
	p.connection = &ref
	dst.invalidated = true
	return nil
}

// BindOutput exports src to the host under alias.
func (g *Graph) BindOutput(src AudioOutRef, alias string) error {
	if _, err := g.outputPort(src); err != nil {
		return err
	}
	g.boundOutputs = append(g.boundOutputs, BoundOutput{Alias: alias, Output: src})
	return nil
}

// Invalidate marks ref dirty, e.g. after an edit that is not itself a
// connection change (parameter metadata, descriptor swap).
func (g *Graph) Invalidate(ref NodeRef) error {
	n, ok := g.nodes[ref]
	if !ok {
		return fmt.Errorf("graph: node not found: %v", ref)
	}
	n.invalidated = true
	return nil
}

// ResetInvalidation clears every node's invalidated bit. The real Graph
// library owns this lifecycle decision; this reference implementation
// exposes it explicitly so callers choose when a consumed update is
// considered "seen" (see DESIGN.md).
func (g *Graph) ResetInvalidation() {
	for _, n := range g.nodes {
		n.invalidated = false
	}
}

// GetNode resolves ref to a Node.
func (g *Graph) GetNode(ref NodeRef) (Node, error) {
	n, ok := g.nodes[ref]
	if !ok {
		return nil, fmt.Errorf("graph: node not found: %v", ref)
	}
	return n, nil
}

// BoundAudioOutputs returns the host-visible output aliases in binding
// order.
func (g *Graph) BoundAudioOutputs() []BoundOutput {
	out := make([]BoundOutput, len(g.boundOutputs))
	copy(out, g.boundOutputs)
	return out
}

// Topology computes a dependency-ordered (sources-first) node list and
// the per-node downstream-connection count.
func (g *Graph) Topology() Topology {
	destinationCounts := make(map[NodeRef]int, len(g.nodes))
	for _, ref := range g.order {
		destinationCounts[ref] = 0
	}

	predecessors := make(map[NodeRef]map[NodeRef]struct{}, len(g.nodes))
	for _, ref := range g.order {
		predecessors[ref] = make(map[NodeRef]struct{})
	}

	for _, ref := range g.order {
		n := g.nodes[ref]
		for _, srcRef := range n.Sources() {
			destinationCounts[srcRef]++
			predecessors[ref][srcRef] = struct{}{}
		}
	}

	inDegree := make(map[NodeRef]int, len(g.nodes))
	successors := make(map[NodeRef][]NodeRef, len(g.nodes))
	for _, ref := range g.order {
		inDegree[ref] = len(predecessors[ref])
		for src := range predecessors[ref] {
			successors[src] = append(successors[src], ref)
		}
	}

	var queue []NodeRef
	for _, ref := range g.order {
		if inDegree[ref] == 0 {
			queue = append(queue, ref)
		}
	}

	ordered := make([]NodeRef, 0, len(g.nodes))
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		ordered = append(ordered, ref)

		for _, next := range successors[ref] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return Topology{Nodes: ordered, DestinationCounts: destinationCounts}
}

func (g *Graph) outputPort(ref AudioOutRef) (*audioOutPort, error) {
	n, ok := g.nodes[ref.Node]
	if !ok {
		return nil, fmt.Errorf("graph: node not found: %v", ref.Node)
	}
	p, ok := n.audioOutputs[ref.Port]
	if !ok {
		return nil, fmt.Errorf("graph: audio output port %q not found on %s", ref.Port, n.RefString())
	}
	return p, nil
}
