// Package window owns the SDL2 window the renderer presents to.
package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/config"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/gpu/vulkan"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

var log = logrus.WithField("subsystem", "window")

// Window is an SDL window created for Vulkan. SDL must only be driven from
// the thread that created the window, so callers lock the main goroutine to
// its OS thread.
type Window struct {
	sdl *sdl.Window

	// drawable reports the size in pixels; it is swapped out in tests.
	drawable  func() (int32, int32)
	minimized bool
	listeners []func(w, h int)
}

func New(cfg config.WindowConfiguration) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "SDL_Init")
	}

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "SDL_Vulkan_LoadLibrary")
	}

	window, err := sdl.CreateWindow(cfg.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width),
		int32(cfg.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
		return nil, errors.Wrap(err, "SDL_CreateWindow")
	}

	return &Window{sdl: window, drawable: window.VulkanGetDrawableSize}, nil
}

// ProcAddr returns vkGetInstanceProcAddr from the Vulkan library SDL loaded.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// InstanceExtensions lists the instance extensions SDL needs to create a
// surface for this window.
func (w *Window) InstanceExtensions() []string {
	return w.sdl.VulkanGetInstanceExtensions()
}

func (w *Window) Width() int {
	width, _ := w.drawable()
	return int(width)
}

func (w *Window) Height() int {
	_, height := w.drawable()
	return int(height)
}

func (w *Window) CreateSurface(instance gpu.Instance) (gpu.Surface, error) {
	vk, ok := instance.(*vulkan.Instance)
	if !ok {
		return nil, errors.Newf("window: cannot create a surface for %T", instance)
	}
	return vk.SurfaceFromSDL(w.sdl)
}

// OnResize registers fn to be called with the new drawable size whenever it
// changes. A minimized window reports (0, 0).
func (w *Window) OnResize(fn func(width, height int)) {
	w.listeners = append(w.listeners, fn)
}

func (w *Window) SetTitle(title string) {
	w.sdl.SetTitle(title)
}

// PollEvents drains the SDL event queue and reports whether the window is
// still open.
func (w *Window) PollEvents() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if !w.handle(event) {
			return false
		}
	}
	return true
}

func (w *Window) handle(event sdl.Event) bool {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return false
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return false
		case sdl.WINDOWEVENT_MINIMIZED:
			w.minimized = true
			w.notify(0, 0)
		case sdl.WINDOWEVENT_RESTORED:
			if w.minimized {
				w.minimized = false
				w.notifySize()
			}
		case sdl.WINDOWEVENT_SIZE_CHANGED:
			w.notifySize()
		}
	}
	return true
}

func (w *Window) notifySize() {
	width, height := w.drawable()
	if width <= 0 || height <= 0 {
		w.notify(0, 0)
		return
	}
	w.notify(int(width), int(height))
}

func (w *Window) notify(width, height int) {
	log.Debugf("drawable size %dx%d", width, height)
	for _, fn := range w.listeners {
		fn(width, height)
	}
}

func (w *Window) Destroy() {
	if w.sdl == nil {
		return
	}
	w.sdl.Destroy()
	w.sdl = nil
	sdl.VulkanUnloadLibrary()
	sdl.Quit()
}
