package hprof

// Dump is one materialised heap dump (one heap-dump-segment group, delimited
// per §4.6 by the Index Builder's grouping of TagHeapDump/TagHeapDumpSegment
// runs). Its classes and objects are resolved against a shared classUniverse
// built just for this Dump.
type Dump struct {
	classes  *classUniverse
	objects  map[uint64]*JavaObject
	roots    []GCRootRecord
	order    []uint64 // object ids in dump order, for deterministic iteration
	heaps    []*Heap
	heapByID map[uint32]*Heap
}

// Heap is one heap-tag-0xFE partition of a Dump: the objects dumped while a
// given HeapDumpInfoRecord was the active heap tag. A dump that never uses
// heap tags at all still exposes exactly one Heap, id 0 with an empty name,
// holding every object — see the single-implicit-heap resolution in
// DESIGN.md.
type Heap struct {
	id      uint32
	name    string
	objects map[uint64]*JavaObject
	order   []uint64
}

// ID is the heap id from its HeapDumpInfoRecord (0 for the implicit default
// heap of an untagged dump).
func (h *Heap) ID() uint32 {
	return h.id
}

// Name is the heap's resolved display name ("" for the implicit default
// heap, or for a tagged heap whose name id resolves to the empty string).
func (h *Heap) Name() string {
	return h.name
}

// ByID looks up an object dumped under this heap by its heap object id.
func (h *Heap) ByID(id uint64) (*JavaObject, bool) {
	o, ok := h.objects[id]
	return o, ok
}

// Objects iterates every object dumped under this heap, in dump order,
// stopping early if yield returns false.
func (h *Heap) Objects(yield func(*JavaObject) bool) {
	for _, id := range h.order {
		if !yield(h.objects[id]) {
			return
		}
	}
}

// ClassByID looks up a registered class by its binary class-object id (array
// classes, which have none, are not reachable this way: use Class).
func (d *Dump) ClassByID(id uint64) (*JavaClass, bool) {
	c, ok := d.classes.byID[id]
	return c, ok
}

// Class looks up a registered class, object or array, by its fully dotted
// Java name.
func (d *Dump) Class(name string) (*JavaClass, bool) {
	c, ok := d.classes.byName[name]
	return c, ok
}

// Object looks up a materialised instance by its heap object id.
func (d *Dump) Object(id uint64) (*JavaObject, bool) {
	o, ok := d.objects[id]
	return o, ok
}

// Objects iterates every materialised instance in dump order, stopping early
// if yield returns false.
func (d *Dump) Objects(yield func(*JavaObject) bool) {
	for _, id := range d.order {
		if !yield(d.objects[id]) {
			return
		}
	}
}

// Roots returns every GC root recorded in this dump.
func (d *Dump) Roots() []GCRootRecord {
	return d.roots
}

// Heaps returns every heap partition of this dump, in order of first
// appearance. A dump with no HeapDumpInfoRecord tags yields a single Heap,
// id 0, holding every object.
func (d *Dump) Heaps() []*Heap {
	return d.heaps
}

// Heap looks up a heap partition by its heap id.
func (d *Dump) Heap(id uint32) (*Heap, bool) {
	h, ok := d.heapByID[id]
	return h, ok
}

// classNamer resolves a class's raw internal JVM name from its
// class-object id, as already decoded by the Index Builder's class-load
// table (§4.6, levelClassLoads).
type classNamer func(classID uint64) (string, error)

// nameResolver resolves a Utf8 name id to its decoded string, as already
// decoded by the Index Builder's name table (§4.6, levelNames).
type nameResolver func(nameID uint64) (string, error)

// buildDump materialises one Dump from its segment ranges: a first pass
// registers every ClassDump (ancestors before descendants, per §4.7,
// resolved lazily by following SuperClassID), and a second pass decodes
// every instance/array once its class's field schema is known.
func buildDump(r *reader, segments []heapDumpSegment, classOf classNamer, nameOf nameResolver) (*Dump, error) {
	classDumps := make(map[uint64]ClassDumpRecord)
	var classOrder []uint64

	type objectInstance struct {
		id  uint64
		rec InstanceDumpRecord
	}
	type objectArrayInstance struct {
		id  uint64
		rec ObjectArrayDumpRecord
	}
	type primArrayInstance struct {
		id  uint64
		rec PrimitiveArrayDumpRecord
	}

	var instances []objectInstance
	var objArrays []objectArrayInstance
	var primArrays []primArrayInstance
	var roots []GCRootRecord
	var order []uint64

	// objectHeap tracks, for each object id, the heap id named by the most
	// recent HeapDumpInfoRecord seen before it — 0 (with no recorded name)
	// for any object dumped before the first such tag, which is also the
	// only heap an untagged dump ever produces.
	objectHeap := make(map[uint64]uint32)
	heapNames := make(map[uint32]uint64) // heap id -> name id
	var currentHeap uint32

	if err := frameSubrecords(r, segments, func(sub subrecord) error {
		switch {
		case sub.Class != nil:
			if _, dup := classDumps[sub.Class.ClassID]; !dup {
				classOrder = append(classOrder, sub.Class.ClassID)
			}
			classDumps[sub.Class.ClassID] = *sub.Class

		case sub.Instance != nil:
			instances = append(instances, objectInstance{id: sub.Instance.ObjectID, rec: *sub.Instance})
			order = append(order, sub.Instance.ObjectID)
			objectHeap[sub.Instance.ObjectID] = currentHeap

		case sub.ObjArray != nil:
			objArrays = append(objArrays, objectArrayInstance{id: sub.ObjArray.ObjectID, rec: *sub.ObjArray})
			order = append(order, sub.ObjArray.ObjectID)
			objectHeap[sub.ObjArray.ObjectID] = currentHeap

		case sub.PrimArray != nil:
			primArrays = append(primArrays, primArrayInstance{id: sub.PrimArray.ObjectID, rec: *sub.PrimArray})
			order = append(order, sub.PrimArray.ObjectID)
			objectHeap[sub.PrimArray.ObjectID] = currentHeap

		case sub.Root != nil:
			roots = append(roots, *sub.Root)

		case sub.HeapInfo != nil:
			currentHeap = sub.HeapInfo.HeapID
			heapNames[currentHeap] = sub.HeapInfo.NameID
		}
		return nil
	}); err != nil {
		return nil, err
	}

	universe, err := materializeClasses(classDumps, classOrder, classOf, nameOf)
	if err != nil {
		return nil, err
	}

	objects := make(map[uint64]*JavaObject, len(instances)+len(objArrays)+len(primArrays))

	for _, p := range instances {
		cls, ok := universe.byID[p.rec.ClassID]
		if !ok {
			return nil, classNotFound("instance 0x%x references unknown class id 0x%x", p.id, p.rec.ClassID)
		}
		obj, err := decodeInstance(r.idsize, p.id, cls, p.rec.Data)
		if err != nil {
			return nil, err
		}
		objects[p.id] = obj
	}

	for _, p := range objArrays {
		elemCls, ok := universe.byID[p.rec.ElementClass]
		elemName := "java.lang.Object"
		if ok {
			elemName = elemCls.Name
		}
		arrCls := objectArrayClass(universe, elemName)
		objects[p.id] = newObjectArray(p.id, arrCls, p.rec.Elements)
	}

	for _, p := range primArrays {
		width, ok := p.rec.ElementType.size(r.idsize)
		if !ok {
			return nil, badFormat("primitive array 0x%x has invalid element type tag 0x%x", p.id, uint8(p.rec.ElementType))
		}
		values, err := decodePrimitiveElements(r.idsize, p.rec.ElementType, p.rec.Data, width)
		if err != nil {
			return nil, err
		}
		arrCls := primitiveArrayClass(universe, p.rec.ElementType)
		objects[p.id] = newPrimitiveArray(p.id, arrCls, values)
	}

	heaps, heapByID, err := buildHeaps(objects, order, objectHeap, heapNames, nameOf)
	if err != nil {
		return nil, err
	}

	return &Dump{classes: universe, objects: objects, roots: roots, order: order, heaps: heaps, heapByID: heapByID}, nil
}

// buildHeaps partitions objects (in dump order) by the heap id each was
// tagged with (see objectHeap in buildDump), resolving each heap's display
// name from its HeapDumpInfoRecord's name id. A dump with no
// HeapDumpInfoRecord tags has every object tagged 0, so this always yields
// at least one Heap.
func buildHeaps(objects map[uint64]*JavaObject, order []uint64, objectHeap map[uint64]uint32, heapNames map[uint32]uint64, nameOf nameResolver) ([]*Heap, map[uint32]*Heap, error) {
	var heapOrder []uint32
	seen := make(map[uint32]bool)
	ids := make(map[uint32][]uint64)

	for _, id := range order {
		hid := objectHeap[id]
		if !seen[hid] {
			seen[hid] = true
			heapOrder = append(heapOrder, hid)
		}
		ids[hid] = append(ids[hid], id)
	}

	heaps := make([]*Heap, 0, len(heapOrder))
	heapByID := make(map[uint32]*Heap, len(heapOrder))
	for _, hid := range heapOrder {
		var name string
		if nameID, ok := heapNames[hid]; ok {
			n, err := nameOf(nameID)
			if err != nil {
				return nil, nil, err
			}
			name = n
		}
		heapIDs := ids[hid]
		heapObjects := make(map[uint64]*JavaObject, len(heapIDs))
		for _, id := range heapIDs {
			heapObjects[id] = objects[id]
		}
		h := &Heap{id: hid, name: name, objects: heapObjects, order: heapIDs}
		heaps = append(heaps, h)
		heapByID[hid] = h
	}
	return heaps, heapByID, nil
}

// materializeClasses registers every ClassDump into a fresh classUniverse,
// resolving each class's superclass before the class itself regardless of
// the order they were dumped in (§4.7 requires super-before-sub registration
// but says nothing about dump order, so this package tolerates either).
func materializeClasses(classDumps map[uint64]ClassDumpRecord, order []uint64, classOf classNamer, nameOf nameResolver) (*classUniverse, error) {
	universe := newClassUniverse()
	resolved := make(map[uint64]*JavaClass, len(classDumps))

	var define func(id uint64, visiting map[uint64]bool) (*JavaClass, error)
	define = func(id uint64, visiting map[uint64]bool) (*JavaClass, error) {
		if cls, ok := resolved[id]; ok {
			return cls, nil
		}
		cd, ok := classDumps[id]
		if !ok {
			return nil, classNotFound("class dump references unknown superclass id 0x%x", id)
		}
		if visiting[id] {
			return nil, badFormat("class hierarchy cycle detected at class id 0x%x", id)
		}
		visiting[id] = true

		var super *JavaClass
		if cd.SuperClassID != 0 {
			s, err := define(cd.SuperClassID, visiting)
			if err != nil {
				return nil, err
			}
			super = s
		}

		internalName, err := classOf(id)
		if err != nil {
			return nil, err
		}

		cls, err := universe.defineClass(cd, internalName, super, nameOf)
		if err != nil {
			return nil, err
		}
		resolved[id] = cls
		return cls, nil
	}

	for _, id := range order {
		if _, err := define(id, map[uint64]bool{}); err != nil {
			return nil, err
		}
	}

	return universe, nil
}

// objectArrayClass returns (creating on first use) the array metaclass for
// object arrays whose declared element class has the given dotted name.
func objectArrayClass(u *classUniverse, elementClassName string) *JavaArrayClass {
	name := elementClassName + "[]"
	if existing, ok := u.arrays[name]; ok {
		return existing
	}
	return u.defineArrayClass(name, JTypeObject, elementClassName, nil)
}

// primitiveArrayClass returns (creating on first use) the array metaclass
// for arrays of the given primitive element type.
func primitiveArrayClass(u *classUniverse, elemType JType) *JavaArrayClass {
	name := elemType.String() + "[]"
	if existing, ok := u.arrays[name]; ok {
		return existing
	}
	return u.defineArrayClass(name, elemType, "", nil)
}

// decodeInstance decodes an InstanceDump's opaque field bytes against cls's
// full inheritance chain. Per the wire format, the bytes hold every
// ancestor's own instance fields in root-to-leaf order — exactly the order
// JavaClass.chainOffset lays the shared field vector out in — so a single
// sequential pass writes each decoded value directly into its final slot.
// Decoding reuses reader.jvalue (the same logic that decodes constant-pool
// and static-field values) by wrapping data in an in-memory ByteSource.
func decodeInstance(idsize int, id uint64, cls *JavaClass, data []byte) (*JavaObject, error) {
	want, err := instanceDataSize(idsize, cls)
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, badFormat("instance 0x%x data length %d does not match class %q's encoded field size %d", id, len(data), cls.Name, want)
	}

	fr := newReader(openBytesSource(data), idsize)
	obj := newInstance(id, cls)
	var off int64
	for _, c := range ancestorChain(cls) {
		for slot, f := range c.InstanceFields {
			v, width, err := fr.jvalue(off, f.Type)
			if err != nil {
				return nil, err
			}
			obj.setField(c, slot, typedValue{Type: f.Type, Value: v})
			off += int64(width)
		}
	}
	return obj, nil
}

// instanceDataSize sums the encoded wire size of every field across cls's
// full inheritance chain, the length an InstanceDump's Data must have per
// §3/§8's data-length invariant.
func instanceDataSize(idsize int, cls *JavaClass) (int, error) {
	total := 0
	for _, c := range ancestorChain(cls) {
		for _, f := range c.InstanceFields {
			width, ok := f.Type.size(idsize)
			if !ok {
				return 0, badFormat("class %q instance field has invalid type tag 0x%x", c.Name, uint8(f.Type))
			}
			total += width
		}
	}
	return total, nil
}

// decodePrimitiveElements decodes a PrimitiveArrayDump's packed Data into one
// typedValue per element.
func decodePrimitiveElements(idsize int, elemType JType, data []byte, width int) ([]typedValue, error) {
	if width <= 0 {
		return nil, badFormat("invalid primitive array element width for type tag 0x%x", uint8(elemType))
	}
	if len(data)%width != 0 {
		return nil, badFormat("primitive array data length %d not a multiple of element width %d", len(data), width)
	}
	n := len(data) / width
	fr := newReader(openBytesSource(data), idsize)
	values := make([]typedValue, n)
	for i := 0; i < n; i++ {
		v, _, err := fr.jvalue(int64(i*width), elemType)
		if err != nil {
			return nil, err
		}
		values[i] = typedValue{Type: elemType, Value: v}
	}
	return values, nil
}

// ancestorChain returns cls's ancestors from java.lang.Object down to cls
// itself, inclusive, matching the root-to-leaf field order of the wire
// format.
func ancestorChain(cls *JavaClass) []*JavaClass {
	var rev []*JavaClass
	for c := cls; c != nil; c = c.Super {
		rev = append(rev, c)
	}
	chain := make([]*JavaClass, len(rev))
	for i, c := range rev {
		chain[len(rev)-1-i] = c
	}
	return chain
}
