package ocid

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Layout identifies the field widths of an ID.
type Layout uint8

const (
	// LayoutV0 is the 39-byte layout with a 6-byte size.
	LayoutV0 Layout = iota + 1
	// LayoutWide is the 42-byte layout with an 8-byte size.
	LayoutWide
)

func (l Layout) String() string {
	switch l {
	case LayoutV0:
		return "v0"
	case LayoutWide:
		return "wide"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// Len returns the raw length of IDs with layout l, or 0 if l is unknown.
func (l Layout) Len() int {
	switch l {
	case LayoutV0:
		return V0Len
	case LayoutWide:
		return WideLen
	default:
		return 0
	}
}

// ID holds a content ID of any layout. Code that must accept IDs of layouts
// added later should use ID rather than a concrete type.
//
// The zero ID has no layout and is not valid.
type ID struct {
	layout Layout
	// size is right-aligned; V0 only uses the low 6 bytes.
	size [WideSizeLen]byte
	hash [HashLen]byte
}

// FromV0 wraps a V0.
func FromV0(id V0) ID {
	out := ID{layout: LayoutV0, hash: id.Hash()}
	size := id.Size()
	copy(out.size[WideSizeLen-V0SizeLen:], size[:])
	return out
}

// FromWide wraps a Wide.
func FromWide(id Wide) ID {
	return ID{layout: LayoutWide, size: id.Size(), hash: id.Hash()}
}

// ParseID parses the raw bytes of an ID, selecting the layout by length.
func ParseID(b []byte) (ID, error) {
	switch len(b) {
	case V0Len:
		id, err := V0FromBytes([V0Len]byte(b))
		if err != nil {
			return ID{}, err
		}
		return FromV0(id), nil
	case WideLen:
		id, err := WideFromBytes([WideLen]byte(b))
		if err != nil {
			return ID{}, err
		}
		return FromWide(id), nil
	default:
		return ID{}, fmt.Errorf("%w: %d bytes", ErrUnknownLayout, len(b))
	}
}

// Layout returns the layout of id.
func (id ID) Layout() Layout { return id.layout }

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool { return id.layout == 0 }

// V0 returns id as a V0 if it has that layout.
func (id ID) V0() (V0, bool) {
	if id.layout != LayoutV0 {
		return V0{}, false
	}
	return NewV0([V0SizeLen]byte(id.size[WideSizeLen-V0SizeLen:]), id.hash), true
}

// Wide returns id as a Wide if it has that layout.
func (id ID) Wide() (Wide, bool) {
	if id.layout != LayoutWide {
		return Wide{}, false
	}
	return NewWide(id.size, id.hash), true
}

// Size returns the content size.
func (id ID) Size() uint64 {
	return binary.BigEndian.Uint64(id.size[:])
}

// Hash returns the content digest.
func (id ID) Hash() [HashLen]byte { return id.hash }

// IsEmpty reports whether the content size is zero.
func (id ID) IsEmpty() bool { return id.Size() == 0 }

// Bytes returns the raw bytes of id in its layout, or nil for the zero ID.
func (id ID) Bytes() []byte {
	switch id.layout {
	case LayoutV0:
		v, _ := id.V0()
		b := v.Bytes()
		return b[:]
	case LayoutWide:
		w, _ := id.Wide()
		b := w.Bytes()
		return b[:]
	default:
		return nil
	}
}

// Compare orders IDs by layout, then by raw bytes.
func (id ID) Compare(other ID) int {
	if id.layout != other.layout {
		if id.layout < other.layout {
			return -1
		}
		return 1
	}
	return bytes.Compare(id.Bytes(), other.Bytes())
}

// WithBase64 calls fn with the text form of id held in a temporary buffer.
// fn is not called for the zero ID.
func (id ID) WithBase64(fn func(text []byte)) {
	switch id.layout {
	case LayoutV0:
		v, _ := id.V0()
		v.WithBase64(fn)
	case LayoutWide:
		w, _ := id.Wide()
		w.WithBase64(fn)
	}
}

// String returns the text form of id's layout.
func (id ID) String() string {
	var s string
	id.WithBase64(func(text []byte) { s = string(text) })
	return s
}

// GoString shows the layout and parsed fields of id.
func (id ID) GoString() string {
	return fmt.Sprintf("ocid.ID{Layout:%s, Size:%d, Hash:%x}", id.layout, id.Size(), id.hash[:])
}

// MarshalText returns the text form of id.
func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: zero ID", ErrUnknownLayout)
	}
	return []byte(id.String()), nil
}
