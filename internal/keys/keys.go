// Package keys implements the stable-key allocators described in §3:
// TableKey, ColKey, ObjKey, and GlobalKey. Keys are process-stable
// identifiers independent of row ordinal; a deleted object's key is
// never reused.
package keys

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"smfdb/internal/coltype"
)

// TableKey identifies a table within the database.
type TableKey uint32

// ObjKey identifies an object within its table. It is stable across
// insertions and deletions of other objects and is never reused once
// an object is destroyed.
type ObjKey uint64

// NullObjKey is the sentinel for "no object" (an unset link field).
const NullObjKey ObjKey = 0

// Attr is the orthogonal flag bitmask for a column.
type Attr uint16

const (
	AttrNone       Attr = 0
	AttrNullable   Attr = 1 << 0
	AttrIndexed    Attr = 1 << 1
	AttrUnique     Attr = 1 << 2
	AttrList       Attr = 1 << 3
	AttrSet        Attr = 1 << 4
	AttrDictionary Attr = 1 << 5
	AttrStrongLink Attr = 1 << 6
)

func (a Attr) Has(flag Attr) bool { return a&flag != 0 }

// IsCollection reports whether the column is a list, set, or dictionary.
func (a Attr) IsCollection() bool {
	return a.Has(AttrList) || a.Has(AttrSet) || a.Has(AttrDictionary)
}

// ColKey packs a column's leaf index, kind, attribute bitmask, and a
// salt tag into a single 63-bit-safe identifier, per §3: "a tag salting
// the above so that a column removed and re-added is distinguishable".
//
// Layout (low to high bits): leaf index (24 bits) | kind (8 bits) |
// attrs (16 bits) | salt (15 bits).
type ColKey uint64

const (
	leafBits = 24
	kindBits = 8
	attrBits = 16

	leafShift = 0
	kindShift = leafShift + leafBits
	attrShift = kindShift + kindBits
	saltShift = attrShift + attrBits

	leafMask = (1 << leafBits) - 1
	kindMask = (1 << kindBits) - 1
	attrMask = (1 << attrBits) - 1
	saltMask = (1 << 15) - 1
)

// NewColKey packs the four logical subfields into a ColKey.
func NewColKey(leafIndex uint32, kind coltype.Kind, attrs Attr, salt uint16) ColKey {
	return ColKey(uint64(leafIndex&leafMask)<<leafShift |
		uint64(byte(kind)&kindMask)<<kindShift |
		uint64(uint16(attrs)&attrMask)<<attrShift |
		uint64(salt&saltMask)<<saltShift)
}

func (c ColKey) LeafIndex() uint32 { return uint32((uint64(c) >> leafShift) & leafMask) }
func (c ColKey) Kind() coltype.Kind {
	return coltype.Kind((uint64(c) >> kindShift) & kindMask)
}
func (c ColKey) Attrs() Attr { return Attr((uint64(c) >> attrShift) & attrMask) }
func (c ColKey) Salt() uint16 { return uint16((uint64(c) >> saltShift) & saltMask) }

func (c ColKey) String() string {
	return fmt.Sprintf("ColKey(leaf=%d kind=%s attrs=%04x salt=%d)", c.LeafIndex(), c.Kind(), c.Attrs(), c.Salt())
}

// GlobalKey is the identifier used by sync; it maps to exactly one
// ObjKey per table on each replica. NewGlobalKey returns a random
// (version 4) UUID; it is not derived from the object's content.
type GlobalKey uuid.UUID

func NewGlobalKey() GlobalKey { return GlobalKey(uuid.New()) }

func (g GlobalKey) String() string { return uuid.UUID(g).String() }

// ObjAllocator hands out process-stable, monotonically increasing
// ObjKey values for one table. Deleted keys are never reused because
// the counter never rewinds.
type ObjAllocator struct {
	next atomic.Uint64
}

func NewObjAllocator() *ObjAllocator {
	a := &ObjAllocator{}
	a.next.Store(1) // 0 is NullObjKey
	return a
}

func (a *ObjAllocator) Next() ObjKey {
	return ObjKey(a.next.Add(1) - 1)
}

// TableAllocator hands out process-stable TableKey values.
type TableAllocator struct {
	next atomic.Uint32
}

func NewTableAllocator() *TableAllocator { return &TableAllocator{} }

func (a *TableAllocator) Next() TableKey {
	return TableKey(a.next.Add(1) - 1)
}

// ColKeySalter produces increasing salts per leaf index so a removed
// and re-added column at the same leaf index gets a distinguishable key.
type ColKeySalter struct {
	nextSalt map[uint32]uint16
}

func NewColKeySalter() *ColKeySalter {
	return &ColKeySalter{nextSalt: make(map[uint32]uint16)}
}

func (s *ColKeySalter) Salt(leafIndex uint32) uint16 {
	salt := s.nextSalt[leafIndex]
	s.nextSalt[leafIndex] = salt + 1
	return salt
}
