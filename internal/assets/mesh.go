// Package assets decodes meshes, textures and shaders into the create infos
// the renderer consumes.
package assets

import (
	"io"
	"io/fs"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lunarengine/lunar/internal/render"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("subsystem", "assets")

type Mesh struct {
	Vertices []render.Vertex
	Indices  []uint32
}

type vertexKey struct {
	position, uv, normal int
}

type meshBuilder struct {
	decoder *obj.Decoder
	mesh    Mesh
	unique  map[vertexKey]uint32
}

// LoadMesh decodes a Wavefront OBJ file. Polygons are fanned into
// triangles, vertices that share position, texture coordinate and normal
// are merged, and V is flipped to Vulkan's top-left origin. Faces without
// normals get their flat face normal. mtl may be nil.
func LoadMesh(objReader, mtl io.Reader) (*Mesh, error) {
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objReader, mtl)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	b := &meshBuilder{decoder: decoder, unique: make(map[vertexKey]uint32)}
	for _, object := range decoder.Objects {
		for _, face := range object.Faces {
			if len(face.Vertices) < 3 {
				log.Warnf("skipping face with %d vertices in %q", len(face.Vertices), object.Name)
				continue
			}
			if err := b.addFace(face); err != nil {
				return nil, errors.Wrapf(err, "object %q", object.Name)
			}
		}
	}

	if len(b.mesh.Indices) == 0 {
		return nil, errors.New("obj contains no triangles")
	}
	return &b.mesh, nil
}

func LoadMeshFile(fsys fs.FS, name string) (*Mesh, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mesh, err := LoadMesh(f, nil)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return mesh, nil
}

func (b *meshBuilder) addFace(face obj.Face) error {
	for i := 2; i < len(face.Vertices); i++ {
		corners := [3]int{0, i - 1, i}

		var flat mgl32.Vec3
		if !b.hasNormals(face, corners) {
			p0, err := b.position(face.Vertices[corners[0]])
			if err != nil {
				return err
			}
			p1, err := b.position(face.Vertices[corners[1]])
			if err != nil {
				return err
			}
			p2, err := b.position(face.Vertices[corners[2]])
			if err != nil {
				return err
			}
			flat = p1.Sub(p0).Cross(p2.Sub(p0))
			if flat.Len() > 0 {
				flat = flat.Normalize()
			}
		}

		for _, corner := range corners {
			if err := b.addVertex(face, corner, flat); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *meshBuilder) hasNormals(face obj.Face, corners [3]int) bool {
	for _, corner := range corners {
		if !valid(face.Normals, corner, b.decoder.Normals, 3) {
			return false
		}
	}
	return true
}

// valid reports whether indices[corner] addresses a full element of a flat
// attribute array.
func valid(indices []int, corner int, values []float32, width int) bool {
	if corner >= len(indices) {
		return false
	}
	i := indices[corner]
	return i >= 0 && (i+1)*width <= len(values)
}

func (b *meshBuilder) position(i int) (mgl32.Vec3, error) {
	v := b.decoder.Vertices
	if i < 0 || (i+1)*3 > len(v) {
		return mgl32.Vec3{}, errors.Newf("vertex index %d out of range", i)
	}
	return mgl32.Vec3{v[i*3], v[i*3+1], v[i*3+2]}, nil
}

func (b *meshBuilder) addVertex(face obj.Face, corner int, flat mgl32.Vec3) error {
	key := vertexKey{position: face.Vertices[corner], uv: -1, normal: -1}
	if valid(face.Uvs, corner, b.decoder.Uvs, 2) {
		key.uv = face.Uvs[corner]
	}
	if valid(face.Normals, corner, b.decoder.Normals, 3) {
		key.normal = face.Normals[corner]
	}

	// Flat normals differ per face, so those vertices are never shared.
	if key.normal >= 0 {
		if index, ok := b.unique[key]; ok {
			b.mesh.Indices = append(b.mesh.Indices, index)
			return nil
		}
	}

	position, err := b.position(key.position)
	if err != nil {
		return err
	}

	vertex := render.Vertex{Position: position, Normal: flat}
	if key.uv >= 0 {
		uvs := b.decoder.Uvs
		vertex.TexCoord = mgl32.Vec2{uvs[key.uv*2], 1.0 - uvs[key.uv*2+1]}
	}
	if key.normal >= 0 {
		normals := b.decoder.Normals
		vertex.Normal = mgl32.Vec3{normals[key.normal*3], normals[key.normal*3+1], normals[key.normal*3+2]}
	}

	index := uint32(len(b.mesh.Vertices))
	b.mesh.Vertices = append(b.mesh.Vertices, vertex)
	if key.normal >= 0 {
		b.unique[key] = index
	}
	b.mesh.Indices = append(b.mesh.Indices, index)
	return nil
}
