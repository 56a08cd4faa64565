// Package graph groups a course's threads into similarity clusters and links
// the clusters for the knowledge-graph view.
//
// Clustering is a single greedy pass. Each thread joins the first existing
// node (in creation order) whose centroid is at least ClusterThreshold
// similar to it, otherwise it starts a new node and becomes that node's
// centroid. Centroids are never recomputed, so a node that keeps absorbing
// borderline members can drift away from what its centroid is about.
//
// Links are scored between centroids only, which bounds the second phase to
// k*(k-1)/2 pairs for k nodes.
package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// DefaultClusterThreshold is the minimum centroid similarity for a
	// thread to join an existing node. Lower values merge more aggressively.
	DefaultClusterThreshold = 0.55

	// DefaultLinkThreshold is the similarity a centroid pair must exceed to
	// be linked.
	DefaultLinkThreshold = 0.5
)

var (
	// ErrDuplicateThread is returned when the same thread id appears twice
	// in one build.
	ErrDuplicateThread = errors.New("duplicate thread id")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid graph config")

	// ErrMissingPair is returned when a batch similarity response lacks a
	// pair the builder asked for.
	ErrMissingPair = errors.New("similarity missing for pair")

	// ErrScoreRange is returned for a score that is NaN or outside [0,1].
	ErrScoreRange = errors.New("similarity score out of range")
)

// Thread is the builder's view of a discussion thread.
type Thread struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	CreatorRole string    `json:"creator_role"`
}

// ThreadRef is the display metadata carried on a node for each member.
type ThreadRef struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	CreatorRole string    `json:"creator_role"`
}

// Node is one cluster of threads.
type Node struct {
	ID               string      `json:"id"`
	CentroidThreadID string      `json:"centroid_thread_id"`
	MemberThreadIDs  []string    `json:"member_thread_ids"`
	Size             int         `json:"size"`
	Threads          []ThreadRef `json:"threads"`
}

// Link is a weighted edge between two nodes.
type Link struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

// Graph is the builder output.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Empty returns a graph with non-nil, empty slices so it encodes as
// {"nodes":[],"links":[]}.
func Empty() *Graph {
	return &Graph{Nodes: []Node{}, Links: []Link{}}
}

// Score is the similarity of one unordered pair of thread ids.
type Score struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// BatchSimilarity returns scores for every unordered pair among ids.
type BatchSimilarity func(ctx context.Context, ids []string) ([]Score, error)

// PairSimilarity scores a single pair.
type PairSimilarity func(ctx context.Context, a, b string) (float64, error)

// FromPairs adapts a per-pair oracle to the batch contract. It issues one
// call per unordered pair and stops at the first error.
func FromPairs(fn PairSimilarity) BatchSimilarity {
	return func(ctx context.Context, ids []string) ([]Score, error) {
		scores := make([]Score, 0, len(ids)*(len(ids)-1)/2)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				s, err := fn(ctx, ids[i], ids[j])
				if err != nil {
					return nil, err
				}
				scores = append(scores, Score{A: ids[i], B: ids[j], Score: s})
			}
		}
		return scores, nil
	}
}

// Phase names the builder step an oracle call belonged to.
type Phase string

const (
	PhaseCluster Phase = "cluster"
	PhaseLink    Phase = "link"
)

// OracleError reports a similarity failure during a build.
type OracleError struct {
	Phase Phase
	IDs   []string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("similarity oracle failed during %s phase (%d ids): %v", e.Phase, len(e.IDs), e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// Config holds the builder thresholds.
type Config struct {
	ClusterThreshold float64 `mapstructure:"cluster_threshold"`
	LinkThreshold    float64 `mapstructure:"link_threshold"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		ClusterThreshold: DefaultClusterThreshold,
		LinkThreshold:    DefaultLinkThreshold,
	}
}

// Validate checks that both thresholds are in [0,1] and that links are not
// stricter than clustering.
func (c Config) Validate() error {
	if c.ClusterThreshold < 0 || c.ClusterThreshold > 1 || math.IsNaN(c.ClusterThreshold) {
		return fmt.Errorf("%w: cluster threshold %v outside [0,1]", ErrInvalidConfig, c.ClusterThreshold)
	}
	if c.LinkThreshold < 0 || c.LinkThreshold > 1 || math.IsNaN(c.LinkThreshold) {
		return fmt.Errorf("%w: link threshold %v outside [0,1]", ErrInvalidConfig, c.LinkThreshold)
	}
	if c.LinkThreshold > c.ClusterThreshold {
		return fmt.Errorf("%w: link threshold %v above cluster threshold %v", ErrInvalidConfig, c.LinkThreshold, c.ClusterThreshold)
	}
	return nil
}

// Builder builds graphs with a fixed configuration. It holds no state
// between builds and is safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder validates cfg and returns a builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg}, nil
}

// Config returns the builder thresholds.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build clusters threads in the order given and links the resulting nodes.
// Any oracle failure aborts the build and no graph is returned.
func (b *Builder) Build(ctx context.Context, threads []Thread, sim BatchSimilarity) (*Graph, error) {
	if len(threads) == 0 {
		return Empty(), nil
	}

	ids := make([]string, len(threads))
	seen := make(map[string]struct{}, len(threads))
	for i, t := range threads {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateThread, t.ID)
		}
		seen[t.ID] = struct{}{}
		ids[i] = t.ID
	}

	clusterScores, err := lookup(ctx, sim, PhaseCluster, ids)
	if err != nil {
		return nil, err
	}

	nodes := b.cluster(threads, clusterScores)

	centroids := make([]string, len(nodes))
	for i, n := range nodes {
		centroids[i] = n.CentroidThreadID
	}

	linkScores, err := lookup(ctx, sim, PhaseLink, centroids)
	if err != nil {
		return nil, err
	}

	return &Graph{
		Nodes: nodes,
		Links: b.link(nodes, linkScores),
	}, nil
}

func (b *Builder) cluster(threads []Thread, scores pairScores) []Node {
	nodes := make([]Node, 0)
	for _, t := range threads {
		ref := ThreadRef{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt, CreatorRole: t.CreatorRole}

		assigned := false
		for i := range nodes {
			if scores.get(t.ID, nodes[i].CentroidThreadID) >= b.cfg.ClusterThreshold {
				nodes[i].MemberThreadIDs = append(nodes[i].MemberThreadIDs, t.ID)
				nodes[i].Threads = append(nodes[i].Threads, ref)
				nodes[i].Size++
				assigned = true
				break
			}
		}

		if !assigned {
			nodes = append(nodes, Node{
				ID:               fmt.Sprintf("node_%d", len(nodes)),
				CentroidThreadID: t.ID,
				MemberThreadIDs:  []string{t.ID},
				Size:             1,
				Threads:          []ThreadRef{ref},
			})
		}
	}
	return nodes
}

func (b *Builder) link(nodes []Node, scores pairScores) []Link {
	links := make([]Link, 0)
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			s := scores.get(nodes[i].CentroidThreadID, nodes[j].CentroidThreadID)
			if s > b.cfg.LinkThreshold {
				links = append(links, Link{
					Source: nodes[i].ID,
					Target: nodes[j].ID,
					Value:  s,
				})
			}
		}
	}
	return links
}

// pairScores is keyed by the lexically ordered id pair.
type pairScores map[[2]string]float64

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (p pairScores) get(a, b string) float64 {
	return p[pairKey(a, b)]
}

// lookup issues one batch call for ids and checks that every unordered pair
// came back with a score in [0,1]. Fewer than two ids need no call.
func lookup(ctx context.Context, sim BatchSimilarity, phase Phase, ids []string) (pairScores, error) {
	scores := make(pairScores, len(ids)*(len(ids)-1)/2)
	if len(ids) < 2 {
		return scores, nil
	}

	batch, err := sim(ctx, ids)
	if err != nil {
		return nil, &OracleError{Phase: phase, IDs: ids, Err: err}
	}

	for _, s := range batch {
		if s.A == s.B {
			continue
		}
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > 1 {
			return nil, &OracleError{Phase: phase, IDs: ids, Err: fmt.Errorf("%w: %v for %s/%s", ErrScoreRange, s.Score, s.A, s.B)}
		}
		scores[pairKey(s.A, s.B)] = s.Score
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if _, ok := scores[pairKey(ids[i], ids[j])]; !ok {
				return nil, &OracleError{Phase: phase, IDs: ids, Err: fmt.Errorf("%w: %s/%s", ErrMissingPair, ids[i], ids[j])}
			}
		}
	}
	return scores, nil
}

// SortByCreation orders threads by creation time, oldest first, breaking
// ties by id so repeated builds see the same order.
func SortByCreation(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		if !threads[i].CreatedAt.Equal(threads[j].CreatedAt) {
			return threads[i].CreatedAt.Before(threads[j].CreatedAt)
		}
		return threads[i].ID < threads[j].ID
	})
}
