package cluster

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/graphfold/graphfold/pkg/logger"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
)

// maxLevels bounds the hierarchy depth. Louvain aggregation converges long
// before this on any realistic graph.
const maxLevels = 20

type edgeKey struct {
	a, b int64
}

// Partition computes a hierarchical community cover of the request's edge
// list. Multi-edges between the same node pair are aggregated by weight sum
// and self-loops are skipped with a warning. Level 0 is the finest
// partition; each further level re-clusters the previous level's community
// graph until the partition stops shrinking.
func Partition(req *ClusterRequest) ([]Assignment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(req.Relationships)*2)
	ids := make(map[string]int64)
	intern := func(name string) int64 {
		if id, ok := ids[name]; ok {
			return id
		}
		id := int64(len(names))
		ids[name] = id
		names = append(names, name)
		return id
	}

	weights := make(map[edgeKey]float64)
	for _, rel := range req.Relationships {
		if rel.Subject == rel.Object {
			logger.Warn("[Cluster] Skipping self-loop", "node", rel.Subject, "edge", rel.ID)
			continue
		}
		a, b := intern(rel.Subject), intern(rel.Object)
		if a > b {
			a, b = b, a
		}
		weights[edgeKey{a, b}] += rel.Weight
	}
	if len(weights) == 0 {
		return nil, ErrNoEdges
	}

	g := buildGraph(weights)

	p := req.LeidenParams
	resolution := p.Resolution
	if resolution <= 0 {
		resolution = 1.0
	}
	src := rand.NewPCG(uint64(p.RandomSeed), uint64(p.RandomSeed))

	// Level 0: modularity optimization, keeping the best of the forced
	// re-runs, then subdividing any cluster over the size cap.
	level0 := bestCommunities(g, resolution, src, 1+p.ExtraForcedIterations)
	level0 = enforceMaxSize(g, level0, p.MaxClusterSize, resolution, src)
	sortCommunities(level0)

	// levels[l][c] holds the base node ids of cluster c at level l.
	levels := [][][]int64{toIDGroups(level0)}

	for len(levels) < maxLevels {
		prev := levels[len(levels)-1]
		if len(prev) <= 1 {
			break
		}
		next := coarsen(weights, prev, resolution, src)
		if len(next) >= len(prev) {
			break
		}
		levels = append(levels, next)
	}

	var out []Assignment
	for level, clusters := range levels {
		for cluster, members := range clusters {
			for _, id := range members {
				out = append(out, Assignment{
					Node:    names[id],
					Cluster: cluster,
					Level:   level,
				})
			}
		}
	}
	return out, nil
}

func buildGraph(weights map[edgeKey]float64) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for k, w := range weights {
		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(k.a),
			T: simple.Node(k.b),
			W: w,
		})
	}
	return g
}

// bestCommunities runs the optimizer the given number of times and keeps
// the partition with the highest modularity score.
func bestCommunities(g graph.Undirected, resolution float64, src rand.Source, runs int) [][]graph.Node {
	var best [][]graph.Node
	bestQ := math.Inf(-1)
	for i := 0; i < runs; i++ {
		reduced := community.Modularize(g, resolution, src)
		comms := reduced.Communities()
		q := community.Q(g, comms, resolution)
		if q > bestQ {
			bestQ = q
			best = comms
		}
	}
	return best
}

// enforceMaxSize subdivides clusters above the size cap by re-clustering
// their induced subgraph. A cluster the optimizer refuses to split is cut
// into consecutive chunks of at most maxSize nodes.
func enforceMaxSize(g *simple.WeightedUndirectedGraph, comms [][]graph.Node, maxSize int, resolution float64, src rand.Source) [][]graph.Node {
	var out [][]graph.Node
	for _, comm := range comms {
		if len(comm) <= maxSize {
			out = append(out, comm)
			continue
		}

		sub := inducedSubgraph(g, comm)
		split := bestCommunities(sub, resolution, src, 1)
		if len(split) <= 1 {
			out = append(out, chunkNodes(comm, maxSize)...)
			continue
		}
		out = append(out, enforceMaxSize(g, split, maxSize, resolution, src)...)
	}
	return out
}

func inducedSubgraph(g *simple.WeightedUndirectedGraph, members []graph.Node) *simple.WeightedUndirectedGraph {
	in := make(map[int64]bool, len(members))
	for _, n := range members {
		in[n.ID()] = true
	}

	sub := simple.NewWeightedUndirectedGraph(0, 0)
	for _, n := range members {
		sub.AddNode(simple.Node(n.ID()))
	}
	edges := g.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		if in[e.From().ID()] && in[e.To().ID()] {
			sub.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(e.From().ID()),
				T: simple.Node(e.To().ID()),
				W: e.Weight(),
			})
		}
	}
	return sub
}

func chunkNodes(comm []graph.Node, maxSize int) [][]graph.Node {
	sorted := append([]graph.Node(nil), comm...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	var out [][]graph.Node
	for len(sorted) > 0 {
		n := maxSize
		if n > len(sorted) {
			n = len(sorted)
		}
		out = append(out, sorted[:n])
		sorted = sorted[n:]
	}
	return out
}

// coarsen clusters the community graph of the previous level: one node per
// previous cluster, edges weighted by the summed inter-cluster weight.
// Returns the next level's clusters as base node id groups.
func coarsen(weights map[edgeKey]float64, prev [][]int64, resolution float64, src rand.Source) [][]int64 {
	clusterOf := make(map[int64]int64)
	for c, members := range prev {
		for _, id := range members {
			clusterOf[id] = int64(c)
		}
	}

	agg := make(map[edgeKey]float64)
	for k, w := range weights {
		ca, cb := clusterOf[k.a], clusterOf[k.b]
		if ca == cb {
			continue
		}
		if ca > cb {
			ca, cb = cb, ca
		}
		agg[edgeKey{ca, cb}] += w
	}
	if len(agg) == 0 {
		// community graph is fully disconnected, nothing to merge
		return prev
	}

	g := buildGraph(agg)
	for c := range prev {
		if g.Node(int64(c)) == nil {
			g.AddNode(simple.Node(int64(c)))
		}
	}

	comms := bestCommunities(g, resolution, src, 1)
	sortCommunities(comms)

	next := make([][]int64, 0, len(comms))
	for _, comm := range comms {
		var members []int64
		for _, n := range comm {
			members = append(members, prev[n.ID()]...)
		}
		next = append(next, members)
	}
	return next
}

// sortCommunities orders members by node id and communities by their first
// member, so cluster numbering is stable for a given seed.
func sortCommunities(comms [][]graph.Node) {
	for _, c := range comms {
		sort.Slice(c, func(i, j int) bool { return c[i].ID() < c[j].ID() })
	}
	sort.Slice(comms, func(i, j int) bool { return comms[i][0].ID() < comms[j][0].ID() })
}

func toIDGroups(comms [][]graph.Node) [][]int64 {
	out := make([][]int64, 0, len(comms))
	for _, comm := range comms {
		ids := make([]int64, 0, len(comm))
		for _, n := range comm {
			ids = append(ids, n.ID())
		}
		out = append(out, ids)
	}
	return out
}
