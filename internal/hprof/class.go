package hprof

import "strings"

// containerKind distinguishes the two kinds of node in the dotted-name
// container tree: JavaPackage nodes sit above the class tail, JavaClassName
// nodes sit at and below it. Both are string-valued (their dotted name) and
// support uniform lookup-by-attribute; only JavaClassName nodes may carry a
// registered JavaClass.
type containerKind int

const (
	containerPackage containerKind = iota
	containerClassName
)

// container is a node in the navigable name tree described in §4.8: packages
// and (possibly nested) class names, addressed by fully-qualified dotted
// name, with attribute-style child lookup.
type container struct {
	kind     containerKind
	name     string // this segment only
	fullName string // dotted path from the universe root to this node
	children map[string]*container
	class    *JavaClass // non-nil once a JavaClass is registered at this node
}

// newUniverse returns the root of the container tree: the unnamed ancestor
// of every package and top-level class.
func newUniverse() *container {
	return &container{kind: containerPackage, name: "", fullName: ""}
}

func (c *container) child(name string, kind containerKind) *container {
	if c.children == nil {
		c.children = make(map[string]*container)
	}
	if ch, ok := c.children[name]; ok {
		return ch
	}
	full := name
	if c.fullName != "" {
		full = c.fullName + "." + name
	}
	ch := &container{kind: kind, name: name, fullName: full}
	c.children[name] = ch
	return ch
}

// Get looks up an immediate child by attribute name.
func (c *container) Get(name string) (*container, bool) {
	ch, ok := c.children[name]
	return ch, ok
}

// parsedName is the result of applying the internal-name parsing algorithm
// of §4.8 to a raw JVM classfile-style name.
type parsedName struct {
	arrayDepth  int
	packagePath []string // dotted package segments, outer to inner
	nestedNames []string // outer class to innermost nested class, last entry carries extra+array suffix
}

// parseInternalName applies the six-step algorithm from §4.8:
//  1. count and strip leading '[' (array nesting n)
//  2. if n>0, require and strip the 'L...;' wrapper
//  3. split at the first "$$" into base + extra (lambda/anonymous suffix)
//  4. split base on '/' into package path + class tail
//  5. split the class tail on '$' into outer class + nested names
//  6. append extra, then "[]"*n, to the last nested name
func parseInternalName(internal string) (parsedName, error) {
	s := internal
	n := 0
	for len(s) > 0 && s[0] == '[' {
		n++
		s = s[1:]
	}
	if n > 0 {
		if len(s) < 2 || s[0] != 'L' || s[len(s)-1] != ';' {
			return parsedName{}, badFormat("array class name %q missing L...; wrapper", internal)
		}
		s = s[1 : len(s)-1]
	}

	extra := ""
	if idx := strings.Index(s, "$$"); idx >= 0 {
		extra = s[idx:] // includes the leading "$$"
		s = s[:idx]
	}

	parts := strings.Split(s, "/")
	pkgPath := parts[:len(parts)-1]
	tail := parts[len(parts)-1]

	nested := strings.Split(tail, "$")
	last := nested[len(nested)-1] + extra + strings.Repeat("[]", n)
	nested[len(nested)-1] = last

	return parsedName{arrayDepth: n, packagePath: pkgPath, nestedNames: nested}, nil
}

// internalNameToJava converts a raw internal JVM name into its fully
// dotted, human-readable Java name (package segments and nested-class
// segments joined uniformly by '.'). This is the key used for class-name
// lookups in the Index Builder and the class-load table.
func internalNameToJava(internal string) string {
	p, err := parseInternalName(internal)
	if err != nil {
		// A malformed name cannot be resolved to a container path; fall
		// back to the raw internal spelling so the caller's duplicate
		// checks still behave sanely instead of panicking.
		return internal
	}
	segs := append(append([]string{}, p.packagePath...), p.nestedNames...)
	return strings.Join(segs, ".")
}

// namedField is one entry of a class's own instance-field schema, with its
// name id already resolved against the dump's name table.
type namedField struct {
	Name string
	Type JType
}

// JavaClass is the metatype for every Java class observed in a dump: its
// binary name, its single superclass (nil only for java.lang.Object), its
// ordered instance-field schema, and its static-field table.
type JavaClass struct {
	Name           string // fully dotted name, e.g. "com.example.Outer.Inner"
	Super          *JavaClass
	InstanceFields []namedField // this class's own instance fields, in ClassDump order
	StaticFields   map[string]typedValue
	ClassID        uint64 // the dump's class-object-id; 0 for the synthesised Object root
	fieldIndex     map[string]int // this class's own instance fields, name -> slot within InstanceFields
	chainOffset    int // this class's starting slot in a JavaObject's flat field vector
}

// JavaArrayClass is the metaclass for array types: one per distinct element
// type/class observed in the dump.
type JavaArrayClass struct {
	JavaClass
	ElementType  JType  // element's Java type tag
	ElementClass string // element's dotted class name, populated only when ElementType == JTypeObject
}

// typedValue pairs a decoded value with the Java type it was decoded as,
// matching §9's re-architecture note that dynamic attribute lookup should
// expose a tagged union over the nine Java types.
type typedValue struct {
	Type  JType
	Value interface{}
}

// newObjectClass builds the distinguished java.lang.Object root every class
// chain terminates at. Each classUniverse builds one and shares it across
// its classes rather than rebuilding it per class.
func newObjectClass() *JavaClass {
	return &JavaClass{
		Name:         "java.lang.Object",
		Super:        nil,
		StaticFields: map[string]typedValue{},
		fieldIndex:   map[string]int{},
	}
}

// isSupertypeOf reports whether target's superclass chain includes c
// (reflexively: a class is a supertype of itself).
func (c *JavaClass) isSupertypeOf(target *JavaClass) bool {
	for t := target; t != nil; t = t.Super {
		if t == c {
			return true
		}
	}
	return false
}

// totalFields is the length of a JavaObject's flat field-value vector for
// this class: chainOffset (the instance fields declared by every ancestor up
// to, but not including, this class) plus this class's own instance fields.
func (c *JavaClass) totalFields() int {
	return c.chainOffset + len(c.InstanceFields)
}

// isUniversalClassType reports whether c is one of the two class names the
// JVM treats as universal for class objects (matching java.lang.Class
// reflection semantics): java.lang.Object and java.lang.Class.
func (c *JavaClass) isUniversalClassType() bool {
	return c.Name == "java.lang.Object" || c.Name == "java.lang.Class"
}

// classUniverse owns every JavaClass/JavaArrayClass materialised for one
// dump, plus the container tree used to navigate them by dotted name.
type classUniverse struct {
	root    *container
	object  *JavaClass
	byID    map[uint64]*JavaClass
	byName  map[string]*JavaClass
	arrays  map[string]*JavaArrayClass
}

func newClassUniverse() *classUniverse {
	obj := newObjectClass()
	u := &classUniverse{
		root:   newUniverse(),
		object: obj,
		byID:   make(map[uint64]*JavaClass),
		byName: make(map[string]*JavaClass),
		arrays: make(map[string]*JavaArrayClass),
	}
	u.byName[obj.Name] = obj
	return u
}

// registerContainers walks p's package path and nested names, creating
// container nodes as needed, and returns the container the class itself
// should be attached to.
func (u *classUniverse) registerContainers(p parsedName) *container {
	c := u.root
	for _, seg := range p.packagePath {
		c = c.child(seg, containerPackage)
	}
	for _, seg := range p.nestedNames {
		c = c.child(seg, containerClassName)
	}
	return c
}

// defineClass registers a JavaClass for the given ClassDump, resolving its
// internal name and wiring it into both the id/name lookup maps and the
// container tree. super must already be registered (callers materialise
// classes in dependency order, per §4.7). nameOf resolves a field's name id
// against the dump's name table.
func (u *classUniverse) defineClass(cd ClassDumpRecord, internalName string, super *JavaClass, nameOf func(uint64) (string, error)) (*JavaClass, error) {
	p, err := parseInternalName(internalName)
	if err != nil {
		return nil, err
	}
	if super == nil {
		super = u.object
	}

	fields := make([]namedField, len(cd.InstanceFields))
	fieldIndex := make(map[string]int, len(cd.InstanceFields))
	for i, f := range cd.InstanceFields {
		name, err := nameOf(f.NameID)
		if err != nil {
			return nil, err
		}
		fields[i] = namedField{Name: name, Type: f.Type}
		fieldIndex[name] = i
	}

	cls := &JavaClass{
		Name:           strings.Join(append(append([]string{}, p.packagePath...), p.nestedNames...), "."),
		Super:          super,
		InstanceFields: fields,
		StaticFields:   map[string]typedValue{},
		ClassID:        cd.ClassID,
		fieldIndex:     fieldIndex,
		chainOffset:    super.totalFields(),
	}

	for _, sf := range cd.StaticFields {
		name, err := nameOf(sf.NameID)
		if err != nil {
			return nil, err
		}
		cls.StaticFields[name] = typedValue{Type: sf.Type, Value: sf.Value}
	}

	node := u.registerContainers(p)
	node.class = cls
	u.byID[cd.ClassID] = cls
	u.byName[cls.Name] = cls
	return cls, nil
}

// defineArrayClass registers the metaclass for an array type first seen as
// the element-class-id of an ObjectArrayDump, or synthesises one lazily for
// a PrimitiveArrayDump's element type.
func (u *classUniverse) defineArrayClass(name string, elemType JType, elemClassName string, super *JavaClass) *JavaArrayClass {
	if super == nil {
		super = u.object
	}
	cls := &JavaArrayClass{
		JavaClass: JavaClass{
			Name:         name,
			Super:        super,
			StaticFields: map[string]typedValue{},
			fieldIndex:   map[string]int{},
			chainOffset:  super.totalFields(),
		},
		ElementType:  elemType,
		ElementClass: elemClassName,
	}
	u.byName[name] = &cls.JavaClass
	u.arrays[name] = cls
	return cls
}
