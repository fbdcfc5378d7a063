package hprof

// JavaObject is one materialised instance from a heap dump: its id, its
// dynamic JavaClass, and either a flat field-value vector (plain instances)
// or an element vector (array instances), never both.
//
// The field vector is laid out per §4.9: fields declared by a superclass
// occupy the same vector as the subclass's own fields, at the offset
// JavaClass.chainOffset computed when the class was registered (ancestors
// always register before descendants, so the offset is known up front).
type JavaObject struct {
	ID    uint64
	Class *JavaClass // dynamic type

	fields []typedValue // nil for array instances

	array *arrayElements // nil for plain instances
}

// arrayElements holds the decoded element vector of an array instance.
// Object-array elements are stored as raw ids (resolved to JavaObject/Ref on
// demand by the caller); primitive-array elements are stored as typedValue,
// matching the scalar decoding used for instance fields.
type arrayElements struct {
	elemType JType
	ids      []uint64    // populated when elemType == JTypeObject
	values   []typedValue // populated otherwise
}

// newInstance allocates a JavaObject of the given class with a field vector
// sized for its full inheritance chain, ready to be filled in slot by slot.
func newInstance(id uint64, class *JavaClass) *JavaObject {
	return &JavaObject{ID: id, Class: class, fields: make([]typedValue, class.totalFields())}
}

// setField stores a decoded value for one of class's own instance fields
// (not an ancestor's) into obj's shared vector, at class's chain offset.
func (obj *JavaObject) setField(class *JavaClass, slot int, v typedValue) {
	obj.fields[class.chainOffset+slot] = v
}

// newObjectArray allocates an array instance whose elements are object ids.
func newObjectArray(id uint64, class *JavaArrayClass, ids []uint64) *JavaObject {
	return &JavaObject{ID: id, Class: &class.JavaClass, array: &arrayElements{elemType: JTypeObject, ids: ids}}
}

// newPrimitiveArray allocates an array instance whose elements are decoded
// primitive values.
func newPrimitiveArray(id uint64, class *JavaArrayClass, values []typedValue) *JavaObject {
	return &JavaObject{ID: id, Class: &class.JavaClass, array: &arrayElements{elemType: class.ElementType, values: values}}
}

// isArray reports whether obj is an array instance.
func (obj *JavaObject) isArray() bool {
	return obj.array != nil
}

// Ref is a narrowed view of a JavaObject: the same target, but field lookups
// and isinstance-style checks are resolved against declared rather than the
// target's own dynamic type. Used to disambiguate a shadowed field name when
// a subclass redeclares a field its superclass already owns (§4.9).
type Ref struct {
	target   *JavaObject
	declared *JavaClass
}

// Cast implements the narrowing operation of §4.9, in the exact order the
// specification states:
//
//  1. If target is already a Ref, unwrap it to its raw target first,
//     discarding whatever declared type it previously carried.
//  2. If declared is nil, or equal to the target's own dynamic type, the
//     target is returned unchanged — no Ref is allocated for an identity
//     cast.
//  3. If target is itself a class object (a *JavaClass), it is returned
//     unchanged: class objects are never narrowed.
//  4. If declared is not a supertype of the target's dynamic type, casting
//     is a TypeError.
//  5. Otherwise a new Ref wrapping target under declared is constructed.
func Cast(target interface{}, declared *JavaClass) (interface{}, error) {
	if ref, ok := target.(*Ref); ok {
		target = ref.target
	}

	if cls, ok := target.(*JavaClass); ok {
		return cls, nil
	}

	obj, ok := target.(*JavaObject)
	if !ok {
		return nil, typeError("cast target must be a JavaObject, JavaClass, or Ref")
	}

	if declared == nil || declared == obj.Class {
		return obj, nil
	}
	if !declared.isSupertypeOf(obj.Class) {
		return nil, typeError("cannot cast %s to non-supertype %s", obj.Class.Name, declared.Name)
	}
	return &Ref{target: obj, declared: declared}, nil
}

// startType returns the class a field lookup against v should begin walking
// from: a Ref's declared type, or an object's/class's own dynamic type.
func startType(v interface{}) (*JavaObject, *JavaClass, error) {
	switch t := v.(type) {
	case *Ref:
		return t.target, t.declared, nil
	case *JavaObject:
		return t, t.Class, nil
	case *JavaClass:
		return nil, t, nil
	default:
		return nil, nil, typeError("field lookup target must be a JavaObject, JavaClass, or Ref")
	}
}

// Get resolves a named field on v, climbing from the starting type down
// through each ancestor's own instance fields, then its own static fields,
// before moving to the superclass. Lookup on a bare class object (no
// instance) only ever considers static fields.
func Get(v interface{}, name string) (typedValue, error) {
	obj, start, err := startType(v)
	if err != nil {
		return typedValue{}, err
	}

	for t := start; t != nil; t = t.Super {
		if obj != nil {
			if slot, ok := t.fieldIndex[name]; ok {
				return obj.fields[t.chainOffset+slot], nil
			}
		}
		if sv, ok := t.StaticFields[name]; ok {
			return sv, nil
		}
	}

	typeName := "java.lang.Class"
	if start != nil {
		typeName = start.Name
	}
	return typedValue{}, noSuchField("no such field %q on %s", name, typeName)
}

// ArrayLen returns the element count of an array instance, or a TypeError if
// v is not an array.
func ArrayLen(v interface{}) (int, error) {
	obj, _, err := startType(v)
	if err != nil {
		return 0, err
	}
	if obj == nil || !obj.isArray() {
		name := "java.lang.Class"
		if obj != nil {
			name = obj.Class.Name
		}
		return 0, typeError("%s is not an array", name)
	}
	if obj.array.elemType == JTypeObject {
		return len(obj.array.ids), nil
	}
	return len(obj.array.values), nil
}

// ArrayIndex returns the i'th element of an array instance. Object-array
// elements are returned as a raw id (uint64); the caller resolves it against
// a Dump's object table. OutOfBounds is returned for i outside [0, len).
func ArrayIndex(v interface{}, i int) (interface{}, error) {
	obj, _, err := startType(v)
	if err != nil {
		return nil, err
	}
	if obj == nil || !obj.isArray() {
		name := "java.lang.Class"
		if obj != nil {
			name = obj.Class.Name
		}
		return nil, typeError("%s is not an array", name)
	}
	if obj.array.elemType == JTypeObject {
		if i < 0 || i >= len(obj.array.ids) {
			return nil, outOfBounds("array index %d out of range [0, %d)", i, len(obj.array.ids))
		}
		return obj.array.ids[i], nil
	}
	if i < 0 || i >= len(obj.array.values) {
		return nil, outOfBounds("array index %d out of range [0, %d)", i, len(obj.array.values))
	}
	return obj.array.values[i], nil
}
