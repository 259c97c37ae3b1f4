// Package layer loads the road centerline and distress layers of a survey
// and models distress layers as present or absent.
package layer

import (
	"strings"

	"github.com/twpayne/go-geom"
)

// Kind identifies what a layer describes.
type Kind string

const (
	KindRoad     Kind = "road"
	KindCracking Kind = "cracking"
	KindPothole  Kind = "pothole"
	KindRutting  Kind = "rutting"
)

// Feature is a single input geometry. ID is the zero-based record number in
// its source.
type Feature struct {
	ID   int
	Geom geom.T
}

// Layer is either Present with a (possibly empty) feature set or Absent.
// Absent layers contribute zero to every derived metric.
type Layer struct {
	Kind     Kind
	CRS      string
	features []Feature
	present  bool
}

// Present builds a layer from loaded features.
func Present(kind Kind, crs string, features []Feature) Layer {
	return Layer{Kind: kind, CRS: crs, features: features, present: true}
}

// Absent builds a layer that was not supplied.
func Absent(kind Kind) Layer {
	return Layer{Kind: kind}
}

// Features returns the features and whether the layer is present.
func (l Layer) Features() ([]Feature, bool) {
	return l.features, l.present
}

// IsPresent reports whether the layer was supplied.
func (l Layer) IsPresent() bool {
	return l.present
}

// Len is the number of features (0 for an absent layer).
func (l Layer) Len() int {
	return len(l.features)
}

// SameCRS reports whether two CRS identifiers denote the same system. An
// empty identifier means "unknown" and matches anything.
func SameCRS(a, b string) bool {
	a, b = normalizeCRS(a), normalizeCRS(b)
	if a == "" || b == "" {
		return true
	}
	return a == b
}

func normalizeCRS(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
