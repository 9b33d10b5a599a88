package main

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/primary"
	"github.com/taigrr/edgegrad/pkg/render"
	"github.com/taigrr/edgegrad/pkg/sampler"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// splatPrimaryEdges draws one frame's primary-edge samples as an additive
// heat overlay: every valid record's screen point lights up a small disc
// whose brightness follows the ray pair's channel-multiplier magnitude, so
// denser/heavier-weighted silhouette regions glow brighter. This is the
// same signal compute_primary_edge_derivatives consumes as its gradient
// contribution, just visualized instead of propagated to vertices.
func splatPrimaryEdges(samp *sampler.EdgeSampler, cam scene.Camera, samples []primary.Sample, dImage []float64, fb *render.Framebuffer) {
	out := samp.SamplePrimaryEdges(cam, samples, dImage)

	const splatRadius = 1
	for i, rec := range out.Records {
		if !rec.Valid() {
			continue
		}
		mag := channelMagnitude(out.ChannelMultipliers[2*i]) + channelMagnitude(out.ChannelMultipliers[2*i+1])
		if mag <= 0 {
			continue
		}
		px := int(rec.ScreenPoint.X * float64(fb.Width))
		py := int(rec.ScreenPoint.Y * float64(fb.Height))
		heat := math.Min(1, mag*0.5)
		for dy := -splatRadius; dy <= splatRadius; dy++ {
			for dx := -splatRadius; dx <= splatRadius; dx++ {
				additiveBlend(fb, px+dx, py+dy, heat)
			}
		}
	}
}

func channelMagnitude(c []float64) float64 {
	sum := 0.0
	for _, v := range c {
		sum += math.Abs(v)
	}
	return sum
}

func additiveBlend(fb *render.Framebuffer, x, y int, heat float64) {
	if x < 0 || x >= fb.Width || y < 0 || y >= fb.Height {
		return
	}
	cur := fb.GetPixel(x, y)
	add := func(c uint8) uint8 {
		v := float64(c) + heat*220
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	fb.SetPixel(x, y, render.RGBA(add(cur.R), add(cur.G), add(cur.B), 255))
}
