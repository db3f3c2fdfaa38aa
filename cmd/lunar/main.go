//go:generate glslc ../../assets/shaders/shader.vert -o ../../assets/shaders/vert.spv
//go:generate glslc ../../assets/shaders/shader.frag -o ../../assets/shaders/frag.spv

package main

import (
	"flag"
	"io/fs"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/lunarengine/lunar/internal/assets"
	"github.com/lunarengine/lunar/internal/config"
	"github.com/lunarengine/lunar/internal/gpu/vulkan"
	"github.com/lunarengine/lunar/internal/render"
	"github.com/lunarengine/lunar/internal/window"
	"github.com/lunarengine/lunar/internal/workers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func init() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()
}

var (
	envFile    = flag.String("env", ".env", "Optional dotenv file with LUNAR_* settings")
	cpuProfile = flag.String("cpuprof", "", "Profile CPU usage to file")
	modelPath  = flag.String("model", "models/cube.obj", "OBJ model, relative to the assets directory")
	texture    = flag.String("texture", "textures/checker.png", "PNG texture, relative to the assets directory")
	spin       = flag.Bool("spin", true, "Rotate the model. Every new transform re-records its command buffer")
)

type scene struct {
	mesh    *assets.Mesh
	texture render.TextureCreateInfo
	shader  render.GraphicsShaderCreateInfo
}

func loadScene(fsys fs.FS) (*scene, error) {
	var s scene
	var g errgroup.Group

	g.Go(func() (err error) {
		s.mesh, err = assets.LoadMeshFile(fsys, *modelPath)
		return err
	})
	g.Go(func() (err error) {
		s.texture, err = assets.LoadTextureFile(fsys, *texture)
		return err
	})
	g.Go(func() (err error) {
		s.shader, err = assets.LoadGraphicsShader(fsys, "shaders/vert.spv", "shaders/frag.spv")
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}

// projection is a right handed perspective with Vulkan's downward Y.
func projection(width, height int) mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(45), float32(width)/float32(height), 0.1, 10)
	proj[5] *= -1
	return proj
}

func run(cfg config.Configuration) error {
	win, err := window.New(cfg.Window)
	if err != nil {
		return err
	}
	defer win.Destroy()

	instance, err := vulkan.NewInstance(win.ProcAddr(), vulkan.InstanceOptions{
		ApplicationName: cfg.Window.Title,
		Extensions:      win.InstanceExtensions(),
		Validation:      cfg.Renderer.Validation,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	pool := workers.New(runtime.NumCPU())
	defer pool.Close()

	renderer, err := render.NewRenderer(render.NewContext(instance), win, pool, render.Options{
		FramesInFlight: cfg.Renderer.FramesInFlight,
		DescriptorSets: cfg.Renderer.DescriptorPoolSize,
	})
	if err != nil {
		return err
	}
	defer renderer.Destroy()

	start := hrtime.Now()
	s, err := loadScene(os.DirFS(cfg.Assets.Dir))
	if err != nil {
		return errors.Wrap(err, "load scene")
	}
	logrus.Infof("loaded %d vertices, %dx%d texture in %v", len(s.mesh.Vertices), s.texture.Width, s.texture.Height, hrtime.Since(start))

	shaders := renderer.CreateShaders(s.shader)
	if len(shaders) == 0 {
		return errors.New("shader pipeline could not be created")
	}

	tex, err := renderer.CreateTexture(s.texture)
	if err != nil {
		return err
	}
	if err := shaders[0].UseTexture(tex); err != nil {
		return err
	}

	mesh, err := renderer.CreateObject(s.mesh.Vertices, s.mesh.Indices, shaders[0])
	if err != nil {
		return err
	}

	view := mgl32.LookAtV(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1})
	start = hrtime.Now()
	lastReport := start
	frames := 0
	var last mgl32.Mat4

	for win.PollEvents() {
		if renderer.Minimized() {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		model := mgl32.Ident4()
		if *spin {
			elapsed := hrtime.Since(start).Seconds()
			model = mgl32.HomogRotate3DZ(float32(elapsed) * mgl32.DegToRad(90))
		}

		// The transform is a push constant baked into the mesh's secondary
		// buffer. Re-recording it makes Draw wait for every frame in flight,
		// so a spinning model gives up CPU/GPU overlap.
		mvp := projection(win.Width(), win.Height()).Mul4(view).Mul4(model)
		if mvp != last {
			if err := mesh.SetTransform(mvp); err != nil {
				return err
			}
			if err := mesh.Invalidate(); err != nil {
				return err
			}
			last = mvp
		}

		if err := renderer.Draw(); err != nil {
			return err
		}

		frames++
		if now := hrtime.Now(); now-lastReport >= time.Second {
			logrus.WithFields(logrus.Fields{
				"fps":      frames,
				"rebuilds": renderer.Objects().RebuildCount(),
				"dropped":  renderer.Calls().Dropped(),
			}).Debug("frame stats")
			frames, lastReport = 0, now
		}
	}

	return nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.Fatalf("%+v", err)
	}
	logrus.SetLevel(cfg.LogLevel)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logrus.Fatalf("%+v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logrus.Fatalf("%+v", err)
		}
		defer pprof.StopCPUProfile()
	}

	if err := run(cfg); err != nil {
		logrus.Fatalf("%+v", err)
	}
}
