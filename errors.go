package ocid

import "errors"

var (
	// ErrInvalidVersion is returned when the version tag is not zero.
	ErrInvalidVersion = errors.New("ocid: invalid version")
	// ErrSizeOverflow is returned when a content length does not fit the
	// layout's size field.
	ErrSizeOverflow = errors.New("ocid: content too large to address")
	// ErrBufferTooShort is returned when fewer bytes than a full ID are available.
	ErrBufferTooShort = errors.New("ocid: not enough data")
	// ErrTrailingData is returned by exact-length decoders given extra bytes.
	ErrTrailingData = errors.New("ocid: trailing data")
	// ErrRandomSource wraps a failure of the random source.
	ErrRandomSource = errors.New("ocid: random source failed")
	// ErrUnknownLayout is returned when an ID's length matches no layout.
	ErrUnknownLayout = errors.New("ocid: unknown layout")
)
