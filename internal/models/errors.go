package models

// Error types attached to errors returned by the sensor geometry packages.
// Use errors.IsType from go-tooling to classify them.
const (
	// ErrTypeNotFound is returned when a requested label selects no voxels
	ErrTypeNotFound = "not_found"

	// ErrTypeMalformedInput covers parse failures, column count mismatches
	// and inconsistent array lengths
	ErrTypeMalformedInput = "malformed_input"

	// ErrTypeDegenerateGeometry flags coincident sensor/source points that
	// produce non-finite matrix entries
	ErrTypeDegenerateGeometry = "degenerate_geometry"
)
