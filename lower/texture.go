package lower

import (
	"strings"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// parseTextureType parses a texture type name (texture_2d, texture_storage_2d_array,
// texture_depth_cube, texture_multisampled_2d, ...) into an ir.ImageType.
// Storage format/access are parsed syntactically but have no home in this
// project's ImageType (it tracks shape only, not pixel format), so they
// are validated and discarded rather than threaded through.
func (g *GlobalContext) parseTextureType(t *wgsl.NamedType) (ir.ImageType, error) {
	name := t.Name
	img := ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassSampled}

	switch {
	case strings.HasPrefix(name, "texture_storage_"):
		img.Class = ir.ImageClassStorage
		suffix := strings.TrimPrefix(name, "texture_storage_")
		img.Dim = parseTextureDimSuffix(suffix)
		img.Arrayed = strings.Contains(suffix, "_array")
		if len(t.TypeParams) < 2 {
			return ir.ImageType{}, newErr(t.Span, "%s requires a format and access mode", name)
		}

	case strings.HasPrefix(name, "texture_depth_multisampled_"):
		img.Class = ir.ImageClassDepth
		img.Multisampled = true
		img.Dim = parseTextureDimSuffix(strings.TrimPrefix(name, "texture_depth_multisampled_"))

	case strings.HasPrefix(name, "texture_depth_"):
		img.Class = ir.ImageClassDepth
		suffix := strings.TrimPrefix(name, "texture_depth_")
		img.Dim = parseTextureDimSuffix(suffix)
		img.Arrayed = strings.Contains(suffix, "_array")

	case strings.HasPrefix(name, "texture_multisampled_"):
		img.Multisampled = true
		img.Dim = parseTextureDimSuffix(strings.TrimPrefix(name, "texture_multisampled_"))

	case strings.HasPrefix(name, "texture_external"):
		img.Dim = ir.Dim2D

	case strings.HasPrefix(name, "texture_"):
		suffix := strings.TrimPrefix(name, "texture_")
		img.Dim = parseTextureDimSuffix(suffix)
		img.Arrayed = strings.Contains(suffix, "_array")

	default:
		return ir.ImageType{}, newErr(t.Span, "unknown texture type %q", name)
	}

	return img, nil
}

func parseTextureDimSuffix(suffix string) ir.ImageDimension {
	switch {
	case strings.HasPrefix(suffix, "1d"):
		return ir.Dim1D
	case strings.HasPrefix(suffix, "3d"):
		return ir.Dim3D
	case strings.HasPrefix(suffix, "cube"):
		return ir.DimCube
	default:
		return ir.Dim2D
	}
}
