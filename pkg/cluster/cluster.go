// Package cluster defines the boundary between the graph pipeline and the
// hierarchical community-clustering service: the wire types, parameter
// validation shared by client and server, the HTTP client, and the
// modularity partitioner the service runs.
package cluster

import (
	"errors"
	"fmt"
)

// Validation errors. The HTTP layer maps these to 422 responses.
var (
	ErrNoEdges            = errors.New("relationship list must not be empty")
	ErrZeroResolution     = errors.New("resolution must be non-zero when use_modularity is set")
	ErrWeightOutOfRange   = errors.New("relationship weight must be in [0, 1]")
	ErrMaxClusterTooSmall = errors.New("max_cluster_size must be at least 10")
	ErrBadWeightAttribute = errors.New("only the \"weight\" attribute is supported")
	ErrNegativeParam      = errors.New("leiden parameters must be non-negative")
)

// IsValidationError reports whether err is a request validation failure,
// as opposed to an internal clustering failure.
func IsValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrNoEdges, ErrZeroResolution, ErrWeightOutOfRange,
		ErrMaxClusterTooSmall, ErrBadWeightAttribute, ErrNegativeParam,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Relationship is one weighted edge of the clustering input. Nodes are
// referenced by entity name.
type Relationship struct {
	ID      string  `json:"id"`
	Subject string  `json:"subject" validate:"required"`
	Object  string  `json:"object" validate:"required"`
	Weight  float64 `json:"weight"`
}

// LeidenParams tunes the hierarchical partitioner.
type LeidenParams struct {
	Resolution            float64 `json:"resolution"`
	Randomness            float64 `json:"randomness"`
	MaxClusterSize        int     `json:"max_cluster_size"`
	ExtraForcedIterations int     `json:"extra_forced_iterations"`
	UseModularity         bool    `json:"use_modularity"`
	RandomSeed            int64   `json:"random_seed"`
	WeightAttribute       string  `json:"weight_attribute"`
}

// DefaultLeidenParams returns the parameter set used when a caller does not
// override anything.
func DefaultLeidenParams() LeidenParams {
	return LeidenParams{
		Resolution:      1.0,
		Randomness:      0.001,
		MaxClusterSize:  10,
		UseModularity:   true,
		RandomSeed:      7272,
		WeightAttribute: "weight",
	}
}

// ClusterRequest is the body of POST /cluster.
type ClusterRequest struct {
	Relationships []Relationship `json:"relationships" validate:"dive"`
	LeidenParams  LeidenParams   `json:"leiden_params"`
}

// Assignment places one node in one cluster at one hierarchy level.
// Level 0 is the finest partition; higher levels are coarser.
type Assignment struct {
	Node    string `json:"node"`
	Cluster int    `json:"cluster"`
	Level   int    `json:"level"`
}

// ClusterResponse is the body of a successful POST /cluster.
type ClusterResponse struct {
	Communities []Assignment `json:"communities"`
}

// Validate checks the request against the service contract. It returns one
// of the sentinel errors above, wrapped with detail where useful.
func (r *ClusterRequest) Validate() error {
	if len(r.Relationships) == 0 {
		return ErrNoEdges
	}
	for _, rel := range r.Relationships {
		if rel.Weight < 0 || rel.Weight > 1 {
			return fmt.Errorf("%w: edge %s has weight %v", ErrWeightOutOfRange, rel.ID, rel.Weight)
		}
	}

	p := r.LeidenParams
	if p.Resolution < 0 || p.Randomness < 0 || p.ExtraForcedIterations < 0 {
		return ErrNegativeParam
	}
	if p.Resolution == 0 && p.UseModularity {
		return ErrZeroResolution
	}
	if p.MaxClusterSize < 10 {
		return fmt.Errorf("%w: got %d", ErrMaxClusterTooSmall, p.MaxClusterSize)
	}
	if p.WeightAttribute != "" && p.WeightAttribute != "weight" {
		return fmt.Errorf("%w: got %q", ErrBadWeightAttribute, p.WeightAttribute)
	}
	return nil
}
