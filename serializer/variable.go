package serializer

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/hash"
)

// Variable is a named, typed array or value written once per step by each rank.
type Variable struct {
	Name     string
	Type     format.DataType
	ShapeID  format.ShapeID
	Shape    []uint64
	Start    []uint64
	Count    []uint64
	Operator format.CompressionType

	memberID uint32
}

// NewVariable defines a variable. The shape ID follows from the dimensions:
//   - no dimensions: a global single value
//   - count only: a local array
//   - shape, start and count of equal rank: a global array
//
// Shape equal to LocalValueDim marks a local single value.
func NewVariable(name string, dtype format.DataType, shape, start, count []uint64) (*Variable, error) {
	if name == "" {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "empty variable name")
	}
	if dtype == format.TypeCompound {
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "variable %q: compound types cannot be serialized", name)
	}
	if !dtype.IsSupported() {
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "variable %q: data type %d", name, dtype)
	}

	v := &Variable{
		Name:     name,
		Type:     dtype,
		Shape:    slices.Clone(shape),
		Start:    slices.Clone(start),
		Count:    slices.Clone(count),
		Operator: format.CompressionNone,
		memberID: hash.MemberID(name),
	}

	switch {
	case len(shape) == 1 && shape[0] == LocalValueDim:
		v.ShapeID = format.ShapeLocalValue
		v.Shape, v.Start, v.Count = nil, nil, nil
	case len(shape) == 0 && len(start) == 0 && len(count) == 0:
		v.ShapeID = format.ShapeGlobalValue
	case len(shape) == 0 && len(start) == 0:
		v.ShapeID = format.ShapeLocalArray
	default:
		v.ShapeID = format.ShapeGlobalArray
	}

	if err := v.validate(); err != nil {
		return nil, err
	}

	return v, nil
}

// LocalValueDim is the shape that defines a local single value.
const LocalValueDim = ^uint64(0) - 1

// MemberID returns the id recorded for the variable name.
func (v *Variable) MemberID() uint32 { return v.memberID }

// SetSelection changes the block written by the next Put.
func (v *Variable) SetSelection(start, count []uint64) error {
	old := [2][]uint64{v.Start, v.Count}
	v.Start, v.Count = slices.Clone(start), slices.Clone(count)
	if err := v.validate(); err != nil {
		v.Start, v.Count = old[0], old[1]
		return err
	}

	return nil
}

// SetShape changes the global shape of a global array.
func (v *Variable) SetShape(shape []uint64) error {
	if v.ShapeID != format.ShapeGlobalArray {
		return errors.Wrapf(errs.ErrInvalidArgument, "variable %q has no global shape", v.Name)
	}
	old := v.Shape
	v.Shape = slices.Clone(shape)
	if err := v.validate(); err != nil {
		v.Shape = old
		return err
	}

	return nil
}

// SetOperator compresses the variable's block payloads with t.
func (v *Variable) SetOperator(t format.CompressionType) error {
	if v.Type == format.TypeString {
		return errors.Wrapf(errs.ErrInvalidArgument, "variable %q: operators apply to numeric arrays", v.Name)
	}
	v.Operator = t

	return nil
}

// Elements returns the number of elements a Put must supply.
func (v *Variable) Elements() uint64 {
	if v.ShapeID == format.ShapeGlobalValue || v.ShapeID == format.ShapeLocalValue {
		return 1
	}

	n := uint64(1)
	for _, c := range v.Count {
		n *= c
	}

	return n
}

func (v *Variable) validate() error {
	switch v.ShapeID {
	case format.ShapeGlobalArray:
		if len(v.Shape) != len(v.Start) || len(v.Shape) != len(v.Count) {
			return errors.Wrapf(errs.ErrInvalidArgument, "variable %q: shape %v, start %v and count %v differ in rank",
				v.Name, v.Shape, v.Start, v.Count)
		}
		for i := range v.Shape {
			if v.Start[i]+v.Count[i] > v.Shape[i] {
				return errors.Wrapf(errs.ErrSelection, "variable %q: start %v count %v outside shape %v",
					v.Name, v.Start, v.Count, v.Shape)
			}
		}
	case format.ShapeLocalArray:
		if len(v.Start) != 0 || len(v.Shape) != 0 {
			return errors.Wrapf(errs.ErrInvalidArgument, "variable %q: local arrays take a count only", v.Name)
		}
	}

	if v.Type == format.TypeString && v.ShapeID != format.ShapeGlobalValue && v.ShapeID != format.ShapeLocalValue {
		return errors.Wrapf(errs.ErrInvalidArgument, "variable %q: strings are single values", v.Name)
	}

	return nil
}

// Attribute is a named value attached to the dataset.
type Attribute struct {
	Name  string
	Type  format.DataType
	Value any
}

// NewAttribute defines an attribute from a supported scalar, slice or string.
func NewAttribute(name string, value any) (*Attribute, error) {
	if name == "" {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "empty attribute name")
	}

	dtype := format.TypeOf(value)
	if dtype == format.TypeUnknown {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "attribute %q has no value", name)
	}
	if _, err := resolveValues(dtype, value); err != nil {
		return nil, errors.Wrapf(err, "attribute %q", name)
	}

	return &Attribute{Name: name, Type: dtype, Value: value}, nil
}
