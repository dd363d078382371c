package lower

import (
	"fmt"
	"strconv"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// addressSpace maps the parser's bare address-space keyword to the IR
// enum, defaulting to function scope the way an unannotated local `var`
// implicitly lives in function space.
func addressSpace(s string) ir.AddressSpace {
	switch s {
	case "private":
		return ir.SpacePrivate
	case "workgroup":
		return ir.SpaceWorkGroup
	case "uniform":
		return ir.SpaceUniform
	case "storage":
		return ir.SpaceStorage
	case "push_constant":
		return ir.SpacePushConstant
	case "handle":
		return ir.SpaceHandle
	default:
		return ir.SpaceFunction
	}
}

// resourceBinding extracts @group/@binding from a global variable's
// attribute list. A resource type (texture, sampler, uniform/storage
// buffer) must carry both or neither; carrying exactly one is an error.
func resourceBinding(attrs []wgsl.Attribute) (*ir.ResourceBinding, error) {
	var group, binding *uint32
	for _, attr := range attrs {
		switch attr.Name {
		case "group":
			n, err := attrUint32(attr)
			if err != nil {
				return nil, fmt.Errorf("@group: %w", err)
			}
			group = &n
		case "binding":
			n, err := attrUint32(attr)
			if err != nil {
				return nil, fmt.Errorf("@binding: %w", err)
			}
			binding = &n
		}
	}
	if group == nil && binding == nil {
		return nil, nil
	}
	if group == nil || binding == nil {
		return nil, fmt.Errorf("@group and @binding must both be present or both absent")
	}
	return &ir.ResourceBinding{Group: *group, Binding: *binding}, nil
}

func attrUint32(attr wgsl.Attribute) (uint32, error) {
	if len(attr.Args) == 0 {
		return 0, fmt.Errorf("missing argument")
	}
	lit, ok := attr.Args[0].(*wgsl.Literal)
	if !ok {
		return 0, fmt.Errorf("argument must be an integer literal")
	}
	n, err := strconv.ParseUint(lit.Value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", lit.Value, err)
	}
	return uint32(n), nil
}

// memberBinding converts a single attribute (one of a struct member's
// full attribute list) to an ir.Binding if it is a binding-carrying one
// (@builtin or @location, @interpolate folded into the latter). It
// returns nil for any other attribute (e.g. @align, @size), so the
// caller should scan the full list and keep the first non-nil result.
func memberBinding(attr *wgsl.Attribute) *ir.Binding {
	switch attr.Name {
	case "builtin":
		if len(attr.Args) == 0 {
			return nil
		}
		ident, ok := attr.Args[0].(*wgsl.Ident)
		if !ok {
			return nil
		}
		bv, ok := builtinValue(ident.Name)
		if !ok {
			return nil
		}
		var b ir.Binding = ir.BuiltinBinding{Builtin: bv}
		return &b
	case "location":
		n, err := attrUint32(*attr)
		if err != nil {
			return nil
		}
		var b ir.Binding = ir.LocationBinding{Location: n}
		return &b
	default:
		return nil
	}
}

// bindingsFromAttrs scans a full attribute list for @builtin/@location
// (plus a trailing @interpolate folded into the location binding) and
// returns the resulting ir.Binding, or nil if neither was present.
func bindingsFromAttrs(attrs []wgsl.Attribute) (*ir.Binding, error) {
	var result *ir.Binding
	var interp *ir.Interpolation

	for i := range attrs {
		attr := &attrs[i]
		if attr.Name == "interpolate" {
			parsed, err := parseInterpolate(attr)
			if err != nil {
				return nil, err
			}
			interp = parsed
			continue
		}
		if b := memberBinding(attr); b != nil && result == nil {
			result = b
		}
	}

	if result == nil {
		return nil, nil
	}
	if loc, ok := (*result).(ir.LocationBinding); ok && interp != nil {
		loc.Interpolation = interp
		var b ir.Binding = loc
		result = &b
	}
	return result, nil
}

func parseInterpolate(attr *wgsl.Attribute) (*ir.Interpolation, error) {
	interp := &ir.Interpolation{Kind: ir.InterpolationPerspective, Sampling: SamplingDefault(ir.InterpolationPerspective)}
	if len(attr.Args) > 0 {
		if ident, ok := attr.Args[0].(*wgsl.Ident); ok {
			kind, ok := interpolationKind(ident.Name)
			if !ok {
				return nil, fmt.Errorf("@interpolate: unknown type %q", ident.Name)
			}
			interp.Kind = kind
			interp.Sampling = SamplingDefault(kind)
		}
	}
	if len(attr.Args) > 1 {
		if ident, ok := attr.Args[1].(*wgsl.Ident); ok {
			sampling, ok := interpolationSampling(ident.Name)
			if !ok {
				return nil, fmt.Errorf("@interpolate: unknown sampling %q", ident.Name)
			}
			interp.Sampling = sampling
		}
	}
	return interp, nil
}

// SamplingDefault is the implicit sampling mode WGSL assigns an
// @interpolate attribute that names a kind but no explicit sampling.
func SamplingDefault(kind ir.InterpolationKind) ir.InterpolationSampling {
	return ir.SamplingCenter
}

func interpolationKind(name string) (ir.InterpolationKind, bool) {
	switch name {
	case "flat":
		return ir.InterpolationFlat, true
	case "linear":
		return ir.InterpolationLinear, true
	case "perspective":
		return ir.InterpolationPerspective, true
	default:
		return 0, false
	}
}

func interpolationSampling(name string) (ir.InterpolationSampling, bool) {
	switch name {
	case "center":
		return ir.SamplingCenter, true
	case "centroid":
		return ir.SamplingCentroid, true
	case "sample":
		return ir.SamplingSample, true
	default:
		return 0, false
	}
}

var builtinByName = map[string]ir.BuiltinValue{
	"position":            ir.BuiltinPosition,
	"vertex_index":         ir.BuiltinVertexIndex,
	"instance_index":       ir.BuiltinInstanceIndex,
	"front_facing":         ir.BuiltinFrontFacing,
	"frag_depth":           ir.BuiltinFragDepth,
	"sample_index":         ir.BuiltinSampleIndex,
	"sample_mask":          ir.BuiltinSampleMask,
	"local_invocation_id":  ir.BuiltinLocalInvocationID,
	"local_invocation_index": ir.BuiltinLocalInvocationIndex,
	"global_invocation_id": ir.BuiltinGlobalInvocationID,
	"workgroup_id":         ir.BuiltinWorkGroupID,
	"num_workgroups":       ir.BuiltinNumWorkGroups,
}

func builtinValue(name string) (ir.BuiltinValue, bool) {
	v, ok := builtinByName[name]
	return v, ok
}

// entryPointStage reports the shader stage a function's @vertex/
// @fragment/@compute attribute names, and whether one was present at
// all (a function with none is an ordinary, non-entry-point function).
func entryPointStage(attrs []wgsl.Attribute) (ir.ShaderStage, bool) {
	for _, attr := range attrs {
		switch attr.Name {
		case "vertex":
			return ir.StageVertex, true
		case "fragment":
			return ir.StageFragment, true
		case "compute":
			return ir.StageCompute, true
		}
	}
	return 0, false
}

// workgroupSize extracts @workgroup_size(x[, y[, z]])'s three
// dimensions, defaulting the omitted y/z to 1 (not 0 -- WGSL's
// unspecified dimensions run a single invocation along that axis).
func workgroupSize(attrs []wgsl.Attribute) ([3]uint32, error) {
	size := [3]uint32{1, 1, 1}
	for _, attr := range attrs {
		if attr.Name != "workgroup_size" {
			continue
		}
		if len(attr.Args) == 0 {
			return size, fmt.Errorf("@workgroup_size requires at least one argument")
		}
		for i, arg := range attr.Args {
			if i >= 3 {
				break
			}
			lit, ok := arg.(*wgsl.Literal)
			if !ok {
				return size, fmt.Errorf("@workgroup_size argument %d must be a literal", i)
			}
			n, err := strconv.ParseUint(lit.Value, 0, 32)
			if err != nil {
				return size, fmt.Errorf("@workgroup_size argument %d: %w", i, err)
			}
			size[i] = uint32(n)
		}
	}
	return size, nil
}
