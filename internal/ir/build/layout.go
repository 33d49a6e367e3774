package build

import (
	"github.com/pkg/errors"

	"github.com/Engineev/mxc/internal/ast"
)

// FieldSlot is one field's position within its class's memory layout.
type FieldSlot struct {
	Name   string
	Type   ast.Type
	Offset int64
}

// ClassLayout is the per-class memory layout computed once at build time:
// every field at an 8-byte-aligned offset in declaration order, base-class
// fields first.
type ClassLayout struct {
	Name   string
	Base   *ClassLayout
	Fields []FieldSlot
	Size   int64
}

// FieldOffset looks up a field by name, searching base classes outward.
func (c *ClassLayout) FieldOffset(name string) (FieldSlot, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	if c.Base != nil {
		return c.Base.FieldOffset(name)
	}
	return FieldSlot{}, false
}

// buildLayouts computes a ClassLayout for every class declared in prog,
// resolving base classes regardless of declaration order.
func buildLayouts(prog *ast.Program) (map[string]*ClassLayout, error) {
	decls := map[string]*ast.ClassDecl{}
	for _, cd := range prog.Classes {
		decls[cd.Name] = cd
	}
	layouts := map[string]*ClassLayout{}
	var build func(name string, stack map[string]bool) (*ClassLayout, error)
	build = func(name string, stack map[string]bool) (*ClassLayout, error) {
		if l, ok := layouts[name]; ok {
			return l, nil
		}
		cd, ok := decls[name]
		if !ok {
			return nil, errors.Errorf("internal: unknown class %q during layout", name)
		}
		if stack[name] {
			return nil, errors.Errorf("class %q participates in an inheritance cycle", name)
		}
		stack[name] = true
		var base *ClassLayout
		size := int64(0)
		if cd.Base != "" {
			var err error
			if base, err = build(cd.Base, stack); err != nil {
				return nil, err
			}
			size = base.Size
		}
		l := &ClassLayout{Name: name, Base: base}
		for _, f := range cd.Fields {
			l.Fields = append(l.Fields, FieldSlot{Name: f.Name, Type: f.Type, Offset: size})
			size += 8
		}
		l.Size = size
		layouts[name] = l
		return l, nil
	}
	for name := range decls {
		if _, err := build(name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return layouts, nil
}
