// edgeviewer - terminal preview of primary-edge sampling importance.
//
// Loads a glTF/GLB model, builds an EdgeSampler over it, and orbits a
// camera around the mesh while splatting each frame's primary-edge samples
// onto a heat-mapped framebuffer: brighter pixels mark screen positions
// where more (and more heavily weighted) silhouette-edge samples land,
// which is exactly the distribution compute_primary_edge_derivatives draws
// its gradient signal from.
//
// Controls:
//
//	Mouse drag  - Orbit camera
//	Scroll      - Zoom in/out
//	A/D         - Yaw left/right
//	W/S         - Pitch up/down
//	R           - Reset orbit
//	Esc/Ctrl+C  - Quit
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"

	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/meshio"
	"github.com/taigrr/edgegrad/pkg/primary"
	"github.com/taigrr/edgegrad/pkg/render"
	"github.com/taigrr/edgegrad/pkg/sampler"
	"github.com/taigrr/edgegrad/pkg/scene"
)

var (
	targetFPS    = flag.Int("fps", 30, "Target FPS")
	samplesFlag  = flag.Int("samples", 20000, "Primary-edge samples per frame")
	hierarchical = flag.Bool("hierarchical", false, "Build the BVH hierarchical secondary-edge sampler")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "edgeviewer - terminal preview of primary-edge sampling\n\n")
		fmt.Fprintf(os.Stderr, "Usage: edgeviewer [options] <model.glb|model.gltf>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// orbitAxis is a harmonica-spring-damped rotation axis: velocity decays
// toward zero via a critically damped spring instead of being zeroed
// outright, so orbiting settles instead of snapping.
type orbitAxis struct {
	Position, Velocity float64
	spring             harmonica.Spring
	accel              float64
}

func newOrbitAxis(fps int) orbitAxis {
	return orbitAxis{spring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0)}
}

func (a *orbitAxis) update() {
	a.Position += a.Velocity
	a.Velocity, a.accel = a.spring.Update(a.Velocity, a.accel, 0)
}

func run(modelPath string) error {
	shapes, err := meshio.Load(modelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if len(shapes) == 0 {
		return fmt.Errorf("model %q contains no triangle primitives", modelPath)
	}

	lo, hi := bounds(shapes)
	center := lo.Add(hi).Scale(0.5)
	size := hi.Sub(lo)
	radius := math.Max(size.X, math.Max(size.Y, size.Z))
	if radius <= 0 {
		radius = 1
	}
	camDist := radius * 1.8

	term := uv.DefaultTerminal()
	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	fbWidth, fbHeight := width, height*2
	fb := render.NewFramebuffer(fbWidth, fbHeight)

	orbitCamera := func(yaw, pitch, dist float64) *scene.PinholeCamera {
		pos := center.Add(math3d.V3(
			dist*math.Cos(pitch)*math.Sin(yaw),
			dist*math.Sin(pitch),
			dist*math.Cos(pitch)*math.Cos(yaw),
		))
		return scene.NewPinholeCamera(pos, pitch, yaw, 0, math.Pi/3, float64(fbWidth)/float64(fbHeight), fbWidth, fbHeight)
	}

	samp, err := sampler.Build(shapes, orbitCamera(0, 0, camDist), demoMaterials, demoLTCTable{}, sampler.Options{
		UseHierarchicalSampler: *hierarchical,
		Channels:               scene.NewRGBChannels(),
	})
	if err != nil {
		return fmt.Errorf("build edge sampler: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Loaded %s: %d shapes, %d deduplicated edges\n", modelPath, len(shapes), samp.NumEdges())

	yaw := newOrbitAxis(*targetFPS)
	pitch := newOrbitAxis(*targetFPS)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	var mouseDown bool
	var lastMouseX, lastMouseY int
	zoomScale := 1.0

	go func() {
		for ev := range term.Events() {
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				width, height = ev.Width, ev.Height
				term.Erase()
				term.Resize(width, height)
				fbWidth, fbHeight = width, height*2
				fb = render.NewFramebuffer(fbWidth, fbHeight)

			case uv.KeyPressEvent:
				switch {
				case ev.MatchString("escape"), ev.MatchString("ctrl+c"):
					cancel()
					return
				case ev.MatchString("a", "left"):
					yaw.Velocity -= 0.05
				case ev.MatchString("d", "right"):
					yaw.Velocity += 0.05
				case ev.MatchString("w", "up"):
					pitch.Velocity -= 0.05
				case ev.MatchString("s", "down"):
					pitch.Velocity += 0.05
				case ev.MatchString("r"):
					yaw = newOrbitAxis(*targetFPS)
					pitch = newOrbitAxis(*targetFPS)
					zoomScale = 1.0
				}

			case uv.MouseClickEvent:
				mouseDown = true
				lastMouseX, lastMouseY = ev.X, ev.Y

			case uv.MouseReleaseEvent:
				mouseDown = false

			case uv.MouseMotionEvent:
				if mouseDown {
					dx := ev.X - lastMouseX
					dy := ev.Y - lastMouseY
					yaw.Velocity += float64(dx) * 0.01
					pitch.Velocity += float64(dy) * 0.01
					lastMouseX, lastMouseY = ev.X, ev.Y
				}

			case uv.MouseWheelEvent:
				switch ev.Button {
				case uv.MouseWheelUp:
					zoomScale = math.Max(0.2, zoomScale-0.05)
				case uv.MouseWheelDown:
					zoomScale = math.Min(3, zoomScale+0.05)
				}
			}
		}
	}()

	targetDuration := time.Second / time.Duration(*targetFPS)
	cleanup := func() {
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}

	dImage := make([]float64, fbWidth*fbHeight*3)
	for i := range dImage {
		dImage[i] = 1
	}

	for {
		select {
		case <-ctx.Done():
			cleanup()
			return nil
		default:
		}
		frameStart := time.Now()

		yaw.update()
		pitch.update()
		cam := orbitCamera(yaw.Position, pitch.Position, camDist*zoomScale)

		if len(dImage) != fbWidth*fbHeight*3 {
			dImage = make([]float64, fbWidth*fbHeight*3)
			for i := range dImage {
				dImage[i] = 1
			}
		}

		samples := make([]primary.Sample, *samplesFlag)
		for i := range samples {
			samples[i] = primary.Sample{EdgeSel: rand.Float64(), T: rand.Float64()}
		}

		fb.Clear(render.RGB(20, 20, 28))
		splatPrimaryEdges(samp, cam, samples, dImage, fb)

		drawFramebufferANSI(fb, width, height)

		elapsed := time.Since(frameStart)
		if elapsed < targetDuration {
			time.Sleep(targetDuration - elapsed)
		}
	}
}

// drawFramebufferANSI composites a framebuffer to the terminal using
// 24-bit truecolor half-block cells, the same upper-half-block/fg-top/
// bg-bottom technique as render.Framebuffer.Draw, written directly in ANSI
// rather than through ultraviolet's screen-buffer type.
func drawFramebufferANSI(fb *render.Framebuffer, termWidth, termHeight int) {
	var sb strings.Builder
	sb.WriteString("\x1b[H")
	for row := 0; row < termHeight; row++ {
		topY := row * 2
		botY := topY + 1
		for col := 0; col < termWidth && col < fb.Width; col++ {
			top := fb.GetPixel(col, topY)
			bot := fb.GetPixel(col, botY)
			fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				top.R, top.G, top.B, bot.R, bot.G, bot.B)
		}
		sb.WriteString("\x1b[0m\r\n")
	}
	fmt.Fprint(os.Stdout, sb.String())
}
