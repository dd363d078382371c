package ir

import "fmt"

// TypeLayout describes the size and alignment of a type, following
// WGSL's host-shareable memory layout rules (the same shape as std140/
// std430, without a storage/uniform distinction in the size rule itself
// since WGSL computes RequiredAlignOf purely from the type).
type TypeLayout struct {
	Size      uint32
	Alignment uint32
}

// Layouter is a side table mapping module type handles to their
// computed TypeLayout. It must be kept in sync with Module.Types: call
// Update after appending new types, then look sizes up by handle.
// Looking a handle up before calling Update for it is a programming
// error (the layouter panics rather than silently returning a zero
// layout, since a silently-wrong struct offset is worse than a crash).
type Layouter struct {
	layouts []TypeLayout
}

// NewLayouter creates an empty Layouter.
func NewLayouter() *Layouter {
	return &Layouter{}
}

// Update extends the layouter to cover every type appended to
// module.Types since the last call, computing each new type's layout in
// handle order (so array/struct/pointer members, which only reference
// earlier handles by the arena's append-only discipline, always have an
// already-computed layout available).
func (l *Layouter) Update(module *Module) error {
	for h := len(l.layouts); h < len(module.Types); h++ {
		layout, err := computeLayout(module, l, module.Types[h].Inner)
		if err != nil {
			return fmt.Errorf("layout of type %d: %w", h, err)
		}
		l.layouts = append(l.layouts, layout)
	}
	return nil
}

// Lookup returns the layout for handle. It must already have been covered
// by a prior Update call.
func (l *Layouter) Lookup(handle TypeHandle) TypeLayout {
	return l.layouts[handle]
}

func roundUp(alignment, size uint32) uint32 {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

func computeLayout(module *Module, l *Layouter, inner TypeInner) (TypeLayout, error) {
	switch t := inner.(type) {
	case ScalarType:
		w := uint32(t.Width)
		if w == 0 {
			return TypeLayout{}, fmt.Errorf("abstract scalar has no layout (width 0); must be concretized first")
		}
		return TypeLayout{Size: w, Alignment: w}, nil

	case VectorType:
		scalar, err := computeLayout(module, l, t.Scalar)
		if err != nil {
			return TypeLayout{}, err
		}
		switch t.Size {
		case Vec2:
			return TypeLayout{Size: 2 * scalar.Size, Alignment: 2 * scalar.Alignment}, nil
		case Vec3:
			return TypeLayout{Size: 3 * scalar.Size, Alignment: 4 * scalar.Alignment}, nil
		case Vec4:
			return TypeLayout{Size: 4 * scalar.Size, Alignment: 4 * scalar.Alignment}, nil
		default:
			return TypeLayout{}, fmt.Errorf("invalid vector size %d", t.Size)
		}

	case MatrixType:
		colVec, err := computeLayout(module, l, VectorType{Size: t.Rows, Scalar: t.Scalar})
		if err != nil {
			return TypeLayout{}, err
		}
		colStride := roundUp(colVec.Alignment, colVec.Size)
		return TypeLayout{
			Size:      colStride * uint32(t.Columns),
			Alignment: colVec.Alignment,
		}, nil

	case AtomicType:
		return computeLayout(module, l, t.Scalar)

	case PointerType, ValuePointerType:
		// Pointers are never host-shareable; handles only need a layout
		// entry to keep indices aligned with Module.Types.
		return TypeLayout{Size: 0, Alignment: 1}, nil

	case ArrayType:
		if int(t.Base) >= len(l.layouts) {
			return TypeLayout{}, fmt.Errorf("array base type %d not yet laid out", t.Base)
		}
		elem := l.layouts[t.Base]
		stride := t.Stride
		if stride == 0 {
			stride = roundUp(elem.Alignment, elem.Size)
		}
		if t.Size.Constant == nil {
			// Runtime-sized: report the element stride as the nominal size;
			// callers that need the real byte count must special-case this.
			return TypeLayout{Size: stride, Alignment: elem.Alignment}, nil
		}
		return TypeLayout{Size: stride * *t.Size.Constant, Alignment: elem.Alignment}, nil

	case BindingArrayType:
		return TypeLayout{Size: 0, Alignment: 1}, nil

	case StructType:
		return layoutStruct(module, l, t)

	case SamplerType, ImageType, AccelerationStructureType, RayQueryType:
		return TypeLayout{Size: 0, Alignment: 1}, nil

	default:
		return TypeLayout{}, fmt.Errorf("layout: unhandled type %T", inner)
	}
}

// layoutStruct computes the struct's own size/alignment from each
// member's natural layout, following WGSL's structure member layout
// algorithm: offsets are monotonically increasing and rounded up to each
// member's alignment, and the struct's size is rounded up to its own
// alignment so arrays-of-struct tile correctly. @align/@size attributes
// and the StructMember.Offset values are not consulted; a non-zero Span
// larger than the computed size is kept as the size.
func layoutStruct(module *Module, l *Layouter, t StructType) (TypeLayout, error) {
	var offset, structAlign uint32 = 0, 1

	for i, member := range t.Members {
		if int(member.Type) >= len(l.layouts) {
			return TypeLayout{}, fmt.Errorf("struct member %q type %d not yet laid out", member.Name, member.Type)
		}
		mLayout := l.layouts[member.Type]
		offset = roundUp(mLayout.Alignment, offset)
		if mLayout.Alignment > structAlign {
			structAlign = mLayout.Alignment
		}
		offset += mLayout.Size
		_ = i
	}

	size := roundUp(structAlign, offset)
	if t.Span != 0 {
		// Span was already computed by the lowerer; trust it if larger
		// than the minimum.
		if t.Span > size {
			size = t.Span
		}
	}
	return TypeLayout{Size: size, Alignment: structAlign}, nil
}
