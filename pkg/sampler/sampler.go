// Package sampler is the composition root: it wires pkg/edges, pkg/bvh,
// pkg/ltc, pkg/primary and pkg/secondary into the edge-sampling API an
// outer differentiable renderer drives, behind one
// field-struct-with-constructor type.
package sampler

import (
	"fmt"

	"github.com/taigrr/edgegrad/pkg/bvh"
	"github.com/taigrr/edgegrad/pkg/distribution"
	"github.com/taigrr/edgegrad/pkg/edgelog"
	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/ltc"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/primary"
	"github.com/taigrr/edgegrad/pkg/scene"
	"github.com/taigrr/edgegrad/pkg/secondary"
)

// Options configures an EdgeSampler. Zero value is a valid, conservative
// configuration (flat secondary-edge resampling only, no weight filter).
type Options struct {
	// UseHierarchicalSampler builds the BVHNode3/BVHNode6 forest and
	// prefers it over stratified resampling for secondary edges.
	// Scenes with few edges rarely benefit from the tree's construction cost.
	UseHierarchicalSampler bool

	// PrimaryWeightFilter is the opt-in hook for UpdatePrimaryEdgeWeights.
	// Nil (the default) disables the filter.
	PrimaryWeightFilter primary.WeightFilter

	// Channels describes the outer pipeline's per-pixel gradient buffer
	// layout. Defaults to scene.NewRGBChannels() if left zero-valued.
	Channels scene.ChannelInfo
}

// EdgeSampler holds the per-scene state built once by Build and reused
// across every sample/update/derivative call: the deduplicated edge table,
// the two edge-selection distributions, and the optional hierarchical tree.
type EdgeSampler struct {
	shapes    []scene.Shape
	edgeList  []edges.Edge
	materials secondary.MaterialLookup
	tab       ltc.Table
	opts      Options

	primaryDist distribution.Discrete1D
	flatDist    distribution.Discrete1D
	tree        *bvh.EdgeTreeRoots
}

// Build constructs the edge table and both distributions for a scene.
// cam seeds the primary-edge distribution's
// silhouette test and the NCS tree's directional bounds; materials resolves
// a shape's per-face material id for the secondary-edge sampler; tab
// supplies the external LTC fitting tables (pkg/ltc.Table).
//
// Returns ErrNonManifoldEdge (wrapped) if any shape has an edge claimed by
// more than two triangles — a sampler built on ambiguous topology would
// silently mis-weight every downstream derivative, so construction fails
// closed rather than guessing.
func Build(shapes []scene.Shape, cam scene.Camera, materials secondary.MaterialLookup, tab ltc.Table, opts Options) (*EdgeSampler, error) {
	edgeList, err := edges.Build(shapes)
	if err != nil {
		return nil, fmt.Errorf("sampler: building edge table: %w", err)
	}
	if opts.Channels.NumTotalDimensions == 0 {
		opts.Channels = scene.NewRGBChannels()
	}

	s := &EdgeSampler{
		shapes:      shapes,
		edgeList:    edgeList,
		materials:   materials,
		tab:         tab,
		opts:        opts,
		primaryDist: primary.BuildDistribution(shapes, edgeList, cam),
		flatDist:    secondary.BuildDistribution(shapes, edgeList),
	}
	if opts.UseHierarchicalSampler && len(edgeList) > 0 {
		t := bvh.Build(shapes, edgeList, cam.Origin())
		s.tree = &t
	}

	edgelog.Logger().Info("edge sampler built", "num_shapes", len(shapes), "num_edges", len(edgeList), "hierarchical", s.tree != nil)
	return s, nil
}

// NumEdges returns the size of the deduplicated edge table.
func (s *EdgeSampler) NumEdges() int { return len(s.edgeList) }

// Edge returns the deduplicated edge at index i, for callers that need to
// resolve an edge_records entry back to mesh topology.
func (s *EdgeSampler) Edge(i int) edges.Edge { return s.edgeList[i] }

// SamplePrimaryEdges draws a batch of primary-edge samples against the
// camera's silhouette distribution.
func (s *EdgeSampler) SamplePrimaryEdges(cam scene.Camera, samples []primary.Sample, dImage []float64) primary.Output {
	return primary.SampleEdges(cam, s.shapes, s.edgeList, s.primaryDist, samples, dImage, s.opts.Channels)
}

// UpdatePrimaryEdgeWeights is a no-op unless Options.PrimaryWeightFilter
// was set at Build time.
func (s *EdgeSampler) UpdatePrimaryEdgeWeights(records []primary.Record, hits []scene.Intersection, channelMultipliers [][]float64) {
	primary.UpdateWeights(records, hits, channelMultipliers, s.opts.PrimaryWeightFilter)
}

// ComputePrimaryEdgeDerivatives propagates per-record contributions back to
// vertex and camera gradients.
func (s *EdgeSampler) ComputePrimaryEdgeDerivatives(cam scene.Camera, records []primary.Record, samples []primary.Sample, contribs []float64) ([]primary.VertexDerivative, primary.CameraDerivative) {
	return primary.ComputeDerivatives(s.shapes, cam, records, samples, contribs)
}

// SampleSecondaryEdges draws one secondary-edge sample per active pixel.
func (s *EdgeSampler) SampleSecondaryEdges(cam scene.Camera, samples []secondary.Sample, inputs []secondary.Input, dImage []float64) secondary.Output {
	return secondary.SampleEdges(s.shapes, s.edgeList, s.flatDist, s.tree, s.materials, s.tab, cam, samples, inputs, dImage, s.opts.Channels)
}

// UpdateSecondaryEdgeWeights rescales throughputs by the geometry term of
// each ray's actual hit.
func (s *EdgeSampler) UpdateSecondaryEdgeWeights(records []secondary.Record, rays []scene.Ray, hits []scene.Intersection, throughputs []math3d.Vec3, envmap scene.Envmap) {
	secondary.UpdateWeights(records, rays, hits, throughputs, envmap)
}

// AccumulateSecondaryEdgeDerivatives converts per-ray edge contributions
// into shading-point and edge-vertex gradients.
func (s *EdgeSampler) AccumulateSecondaryEdgeDerivatives(records []secondary.Record, shadingPoints []math3d.Vec3, rays []scene.Ray, hits []scene.Intersection, contribs []float64) ([]secondary.ShadingPointDerivative, []secondary.VertexDerivative) {
	return secondary.AccumulateDerivatives(s.shapes, records, shadingPoints, rays, hits, contribs)
}
