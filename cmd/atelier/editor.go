package main

import (
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"atelier/internal/config"
	"atelier/internal/input"
	"atelier/internal/profiling"
	"atelier/internal/render"
	"atelier/internal/scene"
	"atelier/internal/text"
)

// item is the editor-side record of one scene entity, carrying the bounds
// used for hit testing. The scene and renderer know nothing about picking.
type item struct {
	id      render.EntityID
	pos     mgl32.Vec2
	size    mgl32.Vec2
	depth   float32
	mesh    *render.Mesh
	text    bool
	content string
}

type editor struct {
	window   *glfw.Window
	renderer *render.Renderer
	scene    *scene.Scene
	input    *input.Manager
	cfg      config.Config
	face     *text.Face

	shapeVert string
	shapeFrag string

	items     []*item
	selected  *item
	dragging  bool
	dragFromX float64
	dragFromY float64
	nextDepth float32

	showProfiling bool
}

func newEditor(window *glfw.Window, ctx *render.Context, cfg config.Config) (*editor, error) {
	physW, physH := window.GetFramebufferSize()
	logW, logH := window.GetSize()

	shaderDir := cfg.Render.ShaderDir
	r, err := render.NewRenderer(ctx, physW, physH, float32(logW), float32(logH), render.RendererOptions{
		TextVertShader: filepath.Join(shaderDir, "text.vert.spv"),
		TextFragShader: filepath.Join(shaderDir, "text.frag.spv"),
		AtlasSize:      cfg.Render.AtlasSize,
		MaxEntities:    uint32(cfg.Render.MaxEntities),
		ClearColor:     cfg.Render.ClearColor,
	})
	if err != nil {
		return nil, err
	}

	var src *text.Source
	if cfg.Font.Path != "" {
		if src, err = text.LoadSource(cfg.Font.Path); err != nil {
			r.Destroy()
			return nil, err
		}
	} else {
		src = text.BuiltinSource()
	}
	face, err := text.NewFace(src, cfg.Font.Size)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	ed := &editor{
		window:    window,
		renderer:  r,
		scene:     scene.New(),
		input:     input.NewManager(),
		cfg:       cfg,
		face:      face,
		shapeVert: filepath.Join(shaderDir, "shape.vert.spv"),
		shapeFrag: filepath.Join(shaderDir, "shape.frag.spv"),
		nextDepth: 1,
	}
	if err := ed.input.ApplyBindings(cfg.Hotkeys); err != nil {
		r.Destroy()
		return nil, err
	}
	ed.input.InstallCallbacks(window)
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		lw, lh := w.GetSize()
		r.Resize(width, height, float32(lw), float32(lh))
	})
	return ed, nil
}

func (ed *editor) destroy() {
	ed.renderer.Destroy()
}

func (ed *editor) run() error {
	frames := 0
	lastStats := time.Now()

	for !ed.window.ShouldClose() {
		profiling.ResetFrame()

		func() { defer profiling.Track("glfw.PollEvents")(); glfw.PollEvents() }()
		ed.handleActions()

		var shapeCmds []render.RenderCommand
		var textCmds []render.TextCommand
		func() {
			defer profiling.Track("scene.FrameCommands")()
			shapeCmds, textCmds = ed.scene.FrameCommands()
		}()

		var frameErr error
		func() {
			defer profiling.Track("render.Frame")()
			frameErr = ed.renderer.RenderFrame(shapeCmds, textCmds)
		}()
		if frameErr != nil {
			return frameErr
		}

		ed.input.PostUpdate()
		frames++
		if time.Since(lastStats) >= time.Second {
			if ed.showProfiling {
				slog.Info("frame stats", "fps", frames, "top", profiling.TopN(5))
			}
			frames = 0
			lastStats = time.Now()
		}
	}
	return nil
}

// cursorDocPos converts the window-space cursor, which grows downward, into
// document space, which grows upward.
func (ed *editor) cursorDocPos() mgl32.Vec2 {
	cx, cy := ed.input.CursorPos()
	_, lh := ed.window.GetSize()
	return mgl32.Vec2{float32(cx), float32(lh) - float32(cy)}
}

func (ed *editor) handleActions() {
	in := ed.input

	if in.JustPressed(input.ActionQuit) {
		ed.window.SetShouldClose(true)
		return
	}
	if in.JustPressed(input.ActionToggleProfiling) {
		ed.showProfiling = !ed.showProfiling
	}

	if in.JustPressed(input.ActionAddRect) {
		w, h := ed.widgetSize("rect", 120, 80)
		ed.addShape(rectMesh(w, h), mgl32.Vec2{w, h})
	}
	if in.JustPressed(input.ActionAddEllipse) {
		w, h := ed.widgetSize("ellipse", 120, 80)
		ed.addShape(ellipseMesh(w/2, h/2, 48), mgl32.Vec2{w, h})
	}
	if in.JustPressed(input.ActionAddText) {
		ed.addText("text")
	}

	if in.JustPressed(input.ActionSelect) {
		ed.selected = ed.pick(ed.cursorDocPos())
		if ed.selected != nil {
			ed.dragging = true
			ed.dragFromX, ed.dragFromY = in.CursorPos()
		}
	}
	if in.JustReleased(input.ActionSelect) {
		ed.dragging = false
	}
	if ed.dragging && ed.selected != nil {
		cx, cy := in.CursorPos()
		dx := float32(cx - ed.dragFromX)
		dy := float32(ed.dragFromY - cy) // window y grows downward
		if dx != 0 || dy != 0 {
			ed.selected.pos = ed.selected.pos.Add(mgl32.Vec2{dx, dy})
			ed.applyTransform(ed.selected)
			ed.dragFromX, ed.dragFromY = cx, cy
		}
	}

	if in.JustPressed(input.ActionDelete) && ed.selected != nil {
		ed.removeItem(ed.selected)
		ed.selected = nil
	}
	if in.JustPressed(input.ActionDuplicate) && in.IsActive(input.ActionModControl) && ed.selected != nil {
		ed.duplicate(ed.selected)
	}
	if in.JustPressed(input.ActionBringForward) && ed.selected != nil {
		ed.selected.depth++
		ed.applyDepth(ed.selected)
	}
	if in.JustPressed(input.ActionSendBackward) && ed.selected != nil {
		ed.selected.depth--
		ed.applyDepth(ed.selected)
	}
}

// widgetSize resolves the template size for a shape kind, preferring the
// first matching widget from the config palette.
func (ed *editor) widgetSize(kind string, defW, defH float32) (float32, float32) {
	for _, w := range ed.cfg.Widgets {
		if w.Kind == kind {
			return w.Width, w.Height
		}
	}
	return defW, defH
}

func (ed *editor) addShape(mesh *render.Mesh, size mgl32.Vec2) {
	pos := ed.cursorDocPos()
	it := &item{
		pos:   pos,
		size:  size,
		depth: ed.nextDepth,
		mesh:  mesh,
	}
	ed.nextDepth++
	it.id = ed.scene.AddShape(mesh, scene.Transform{Position: pos}, it.depth, ed.shapeVert, ed.shapeFrag)
	ed.items = append(ed.items, it)
	ed.selected = it
}

func (ed *editor) addText(content string) {
	pos := ed.cursorDocPos()
	layout := text.LayoutString(ed.face, content)
	it := &item{
		pos:     pos,
		size:    mgl32.Vec2{layout.Width(), ed.face.LineHeight() * float32(layout.Lines())},
		depth:   ed.nextDepth,
		text:    true,
		content: content,
	}
	ed.nextDepth++
	it.id = ed.scene.AddText(ed.face, content, scene.Transform{Position: pos}, it.depth)
	ed.items = append(ed.items, it)
	ed.selected = it
}

func (ed *editor) duplicate(src *item) {
	offset := mgl32.Vec2{16, 16}
	if src.text {
		it := &item{pos: src.pos.Add(offset), size: src.size, depth: ed.nextDepth, text: true, content: src.content}
		ed.nextDepth++
		it.id = ed.scene.AddText(ed.face, src.content, scene.Transform{Position: it.pos}, it.depth)
		ed.items = append(ed.items, it)
		ed.selected = it
		return
	}
	it := &item{pos: src.pos.Add(offset), size: src.size, depth: ed.nextDepth, mesh: src.mesh}
	ed.nextDepth++
	it.id = ed.scene.AddShape(src.mesh, scene.Transform{Position: it.pos}, it.depth, ed.shapeVert, ed.shapeFrag)
	ed.items = append(ed.items, it)
	ed.selected = it
}

func (ed *editor) removeItem(it *item) {
	ed.scene.Remove(it.id)
	for i, other := range ed.items {
		if other == it {
			ed.items = append(ed.items[:i], ed.items[i+1:]...)
			break
		}
	}
}

func (ed *editor) applyTransform(it *item) {
	t := scene.Transform{Position: it.pos}
	if it.text {
		ed.scene.SetTextTransform(it.id, t)
	} else {
		ed.scene.SetShapeTransform(it.id, t)
	}
}

func (ed *editor) applyDepth(it *item) {
	if !it.text {
		ed.scene.SetShapeDepth(it.id, it.depth)
	}
}

// pick returns the nearest item whose bounds contain the point.
func (ed *editor) pick(p mgl32.Vec2) *item {
	var best *item
	for _, it := range ed.items {
		min := it.pos
		max := it.pos.Add(it.size)
		if p.X() < min.X() || p.X() > max.X() || p.Y() < min.Y() || p.Y() > max.Y() {
			continue
		}
		if best == nil || it.depth > best.depth {
			best = it
		}
	}
	return best
}

// rectMesh builds a w*h rectangle as two triangles anchored at the origin.
func rectMesh(w, h float32) *render.Mesh {
	return render.NewMesh([]mgl32.Vec2{
		{0, 0}, {w, 0}, {w, h},
		{0, 0}, {w, h}, {0, h},
	})
}

// ellipseMesh builds an ellipse as a triangle list around the center.
func ellipseMesh(rx, ry float32, segments int) *render.Mesh {
	verts := make([]mgl32.Vec2, 0, segments*3)
	center := mgl32.Vec2{rx, ry}
	for i := 0; i < segments; i++ {
		a0 := 2 * math.Pi * float64(i) / float64(segments)
		a1 := 2 * math.Pi * float64(i+1) / float64(segments)
		verts = append(verts,
			center,
			center.Add(mgl32.Vec2{rx * float32(math.Cos(a0)), ry * float32(math.Sin(a0))}),
			center.Add(mgl32.Vec2{rx * float32(math.Cos(a1)), ry * float32(math.Sin(a1))}),
		)
	}
	return render.NewMesh(verts)
}
