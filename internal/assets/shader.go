package assets

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/render"
)

// LoadGraphicsShader reads a compiled vertex and fragment stage. The
// bytecode is validated when the pipeline is created.
func LoadGraphicsShader(fsys fs.FS, vertex, fragment string) (render.GraphicsShaderCreateInfo, error) {
	vert, err := fs.ReadFile(fsys, vertex)
	if err != nil {
		return render.GraphicsShaderCreateInfo{}, errors.Wrap(err, "read vertex shader")
	}

	frag, err := fs.ReadFile(fsys, fragment)
	if err != nil {
		return render.GraphicsShaderCreateInfo{}, errors.Wrap(err, "read fragment shader")
	}

	return render.GraphicsShaderCreateInfo{VertexCode: vert, FragmentCode: frag}, nil
}

func LoadComputeShader(fsys fs.FS, name string) (render.ComputeShaderCreateInfo, error) {
	code, err := fs.ReadFile(fsys, name)
	if err != nil {
		return render.ComputeShaderCreateInfo{}, errors.Wrap(err, "read compute shader")
	}
	return render.ComputeShaderCreateInfo{Code: code}, nil
}
