// Package mapper converts geometries to the H3 cells that cover them.
package mapper

import "github.com/paulmach/orb"

type Interface interface {
	CellsForGeometry(g orb.Geometry, res int) ([]string, error)
}
