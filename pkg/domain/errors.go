package domain

import (
	"errors"
	"fmt"
)

// Missing-data errors. These are recoverable: population scans catch them per
// member and report them as findings.
var (
	ErrMissingLandmark = errors.New("landmark not set")
	ErrMissingProfile  = errors.New("profile not available")
	ErrMissingSegment  = errors.New("segment not found")
)

// Structural errors signal a caller bug and are never swallowed.
var (
	ErrInvalidSegments  = errors.New("invalid segment list")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrLocked           = errors.New("object is locked")
	ErrReferenceMove    = errors.New("reference landmark cannot be moved")
	ErrNotRoot          = errors.New("dataset is not a root dataset")
	ErrNotInParent      = errors.New("cell is not present in the parent collection")
	ErrEmptyCollection  = errors.New("collection has no members")
	ErrUnknownComponent = errors.New("unknown component kind")
)

// ErrComponentCreation is returned when a member or consensus shape cannot be
// built or oriented.
var ErrComponentCreation = errors.New("component creation failed")

// ErrNotFound reports a lookup miss for a named entity.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// UnsupportedVersionError is returned when a persisted dataset was written by a
// newer format version than this build can read.
type UnsupportedVersionError struct {
	Version   string
	Supported string
}

func (e UnsupportedVersionError) Error() string {
	return fmt.Sprintf("dataset version %s is newer than supported version %s", e.Version, e.Supported)
}
