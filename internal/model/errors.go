package model

import (
	"errors"
	"fmt"
)

// DisconnectedNetworkError is returned when the road centerline does not
// merge into a single connected path. Parts is the number of line parts left
// after the merge (0 for an empty network).
type DisconnectedNetworkError struct {
	Parts int
}

func (e *DisconnectedNetworkError) Error() string {
	if e.Parts == 0 {
		return "road network is empty"
	}
	return fmt.Sprintf("road network does not merge into one path (%d parts)", e.Parts)
}

// InvalidParameterError reports a run parameter outside its valid range.
type InvalidParameterError struct {
	Name  string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: must be > 0", e.Name, e.Value)
}

// RasterAlignmentError wraps a failure to reproject or read the elevation
// raster for one rutting feature. It never aborts a run.
type RasterAlignmentError struct {
	Feature int
	Err     error
}

func (e *RasterAlignmentError) Error() string {
	return fmt.Sprintf("raster alignment failed for feature %d: %v", e.Feature, e.Err)
}

func (e *RasterAlignmentError) Unwrap() error {
	return e.Err
}

// IsDisconnectedNetwork reports whether err (or any error in its chain) is a
// DisconnectedNetworkError.
func IsDisconnectedNetwork(err error) bool {
	var de *DisconnectedNetworkError
	return errors.As(err, &de)
}

// IsInvalidParameter reports whether err is an InvalidParameterError.
func IsInvalidParameter(err error) bool {
	var ie *InvalidParameterError
	return errors.As(err, &ie)
}

// IsRasterAlignment reports whether err is a RasterAlignmentError.
func IsRasterAlignment(err error) bool {
	var re *RasterAlignmentError
	return errors.As(err, &re)
}
