// Package scene is a retained tree of visual nodes with named animated
// parameters. The engine only ever declares start/end values and a
// duration per parameter; whatever view layer consumes snapshots does the
// actual interpolation.
package scene

import (
	"sync"
	"time"
)

// Stage owns the whole tree. All mutation goes through the stage lock and
// bumps a version counter so pollers can re-render on change.
type Stage struct {
	mu      sync.Mutex
	root    *Node
	version uint64
}

type Node struct {
	stage    *Stage
	parent   *Node
	children []*Node

	Kind  string
	Name  string
	attrs map[string]string
	prms  map[string]Param
}

// Param is one named animation parameter. A zero Duration means the value
// was set instantly; otherwise the view interpolates From→To over
// Duration starting at StartedAt.
type Param struct {
	From      float64
	To        float64
	Duration  time.Duration
	StartedAt time.Time
}

func NewStage() *Stage {
	s := &Stage{}
	s.root = &Node{stage: s, Kind: "root", Name: "stage"}
	return s
}

func (s *Stage) Root() *Node { return s.root }

func (s *Stage) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Clear detaches every child of the root in one step. In-flight animation
// code holding references to detached nodes keeps running; its mutations
// are simply no longer reachable from the root.
func (s *Stage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.root.children {
		c.parent = nil
	}
	s.root.children = nil
	s.version++
}

// NewChild appends a child node. Safe to call on a detached node; the
// subtree just stays invisible.
func (n *Node) NewChild(kind, name string) *Node {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	c := &Node{stage: n.stage, parent: n, Kind: kind, Name: name}
	n.children = append(n.children, c)
	n.stage.version++
	return c
}

// Remove detaches the node from its parent. Idempotent.
func (n *Node) Remove() {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
	n.stage.version++
}

// Attached reports whether the node is still reachable from the root.
func (n *Node) Attached() bool {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	for p := n; p != nil; p = p.parent {
		if p == n.stage.root {
			return true
		}
	}
	return false
}

func (n *Node) SetAttr(key, value string) {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	if n.attrs == nil {
		n.attrs = map[string]string{}
	}
	n.attrs[key] = value
	n.stage.version++
}

func (n *Node) Attr(key string) string {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	return n.attrs[key]
}

// SetParam sets a parameter instantly.
func (n *Node) SetParam(name string, value float64) {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	if n.prms == nil {
		n.prms = map[string]Param{}
	}
	n.prms[name] = Param{From: value, To: value}
	n.stage.version++
}

// AnimateParam declares an interpolation of a parameter from its current
// end value to target over d.
func (n *Node) AnimateParam(name string, target float64, d time.Duration) {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	if n.prms == nil {
		n.prms = map[string]Param{}
	}
	from := n.prms[name].To
	n.prms[name] = Param{From: from, To: target, Duration: d, StartedAt: time.Now()}
	n.stage.version++
}

// ParamTarget is the declared end value of a parameter (zero if unset).
func (n *Node) ParamTarget(name string) float64 {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	return n.prms[name].To
}

// Child returns the first child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) Children() []*Node {
	n.stage.mu.Lock()
	defer n.stage.mu.Unlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Snapshot is the JSON-facing projection of the tree.
type Snapshot struct {
	Version uint64       `json:"version"`
	Root    NodeSnapshot `json:"root"`
}

type NodeSnapshot struct {
	Kind     string                   `json:"kind"`
	Name     string                   `json:"name"`
	Attrs    map[string]string        `json:"attrs,omitempty"`
	Params   map[string]ParamSnapshot `json:"params,omitempty"`
	Children []NodeSnapshot           `json:"children,omitempty"`
}

type ParamSnapshot struct {
	From       float64 `json:"from"`
	To         float64 `json:"to"`
	DurationMS int64   `json:"duration_ms"`
	StartedAt  int64   `json:"started_at_unix_ms,omitempty"`
}

func (s *Stage) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Version: s.version, Root: snapshotNode(s.root)}
}

func snapshotNode(n *Node) NodeSnapshot {
	ns := NodeSnapshot{Kind: n.Kind, Name: n.Name}
	if len(n.attrs) > 0 {
		ns.Attrs = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			ns.Attrs[k] = v
		}
	}
	if len(n.prms) > 0 {
		ns.Params = make(map[string]ParamSnapshot, len(n.prms))
		for k, p := range n.prms {
			snap := ParamSnapshot{From: p.From, To: p.To, DurationMS: p.Duration.Milliseconds()}
			if !p.StartedAt.IsZero() {
				snap.StartedAt = p.StartedAt.UnixMilli()
			}
			ns.Params[k] = snap
		}
	}
	for _, c := range n.children {
		ns.Children = append(ns.Children, snapshotNode(c))
	}
	return ns
}
