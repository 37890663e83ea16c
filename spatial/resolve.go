/*
	Package spatial computes the placement of a series in world space from its
	metadata and the conventions the metadata was written with.
*/
package spatial

import (
	"github.com/janelia-flyem/bioview/bv"
)

// Geometry is the spatial metadata of a series.  A zero Length means the component
// was not reported.
type Geometry struct {
	Dims      bv.Point3d
	VoxelSize [3]bv.Length
	Position  [3]bv.Length
}

// Convention describes how to interpret the spatial metadata of a file.
type Convention struct {
	// PositionUnit and VoxelSizeUnit are the world lengths of one unit of output
	// for positions and voxel sizes.  Zero values mean one micrometer.
	PositionUnit  bv.Length
	VoxelSizeUnit bv.Length

	// PositionIsCenter is set when positions give the image center instead of the
	// corner of the first voxel.
	PositionIsCenter bool

	// Flip mirrors an axis about the image center in pixel space.
	Flip [3]bool

	// Extra transforms applied around the position translation and the voxel
	// scaling.  Zero values are the identity.
	PositionPre  Affine3D
	PositionPost Affine3D
	VoxelPre     Affine3D `toml:"voxelSizePre"`
	VoxelPost    Affine3D `toml:"voxelSizePost"`

	IgnorePosition  bool
	IgnoreVoxelSize bool
}

// DefaultUnit is the reference length used when a Convention gives none.
var DefaultUnit = bv.L(1, bv.Micrometer)

func refOrDefault(l bv.Length) bv.Length {
	if l.Value == 0 || l.Unit == bv.UnitUnknown {
		return DefaultUnit
	}
	return l
}

// VoxelScale returns the per-axis voxel size in units of the convention's
// voxel size reference.  Missing or ignored sizes are 1; sizes given in pixels
// are taken as is.
func VoxelScale(g Geometry, conv Convention) [3]float64 {
	ref := refOrDefault(conv.VoxelSizeUnit)
	scale := [3]float64{1, 1, 1}
	if conv.IgnoreVoxelSize {
		return scale
	}
	for i, l := range g.VoxelSize {
		if l.Unit == bv.UnitUnknown || l.Value == 0 {
			continue
		}
		if l.Unit == bv.Pixel {
			scale[i] = l.Value
		} else {
			scale[i] = l.Ratio(ref)
		}
	}
	return scale
}

// Origin returns the world position of the corner of the first voxel in units of
// the convention's position reference.
func Origin(g Geometry, conv Convention) [3]float64 {
	var origin [3]float64
	if conv.IgnorePosition {
		return origin
	}
	ref := refOrDefault(conv.PositionUnit)
	scale := VoxelScale(g, conv)

	// voxel size measured in position units, for pixel positions and centering
	var step [3]float64
	for i := 0; i < 3; i++ {
		step[i] = scale[i]
		l := g.VoxelSize[i]
		if !conv.IgnoreVoxelSize && l.Unit.Physical() && l.Value != 0 {
			step[i] = l.Ratio(ref)
		}
	}
	for i, l := range g.Position {
		switch {
		case l.Unit == bv.UnitUnknown:
		case l.Unit == bv.Pixel:
			origin[i] = l.Value * step[i]
		default:
			origin[i] = l.Ratio(ref)
		}
	}
	if conv.PositionIsCenter {
		for i := 0; i < 3; i++ {
			origin[i] -= float64(g.Dims[i]) * step[i] / 2
		}
	}
	return origin
}

// FlipTransform returns the pixel space mirroring of the flipped axes.
func FlipTransform(dims bv.Point3d, flip [3]bool) Affine3D {
	a := Identity()
	for i := 0; i < 3; i++ {
		if flip[i] {
			a[i][i] = -1
			a[i][3] = float64(dims[i] - 1)
		}
	}
	return a
}

// Resolve returns the transform from voxel coordinates to world coordinates:
//
//	PositionPost * T(origin) * PositionPre * VoxelPost * S(voxel) * VoxelPre * Flip
//
// Missing metadata never causes an error.
func Resolve(g Geometry, conv Convention) Affine3D {
	a := FlipTransform(g.Dims, conv.Flip)
	a = a.Then(conv.VoxelPre.orIdentity())
	a = a.Then(Scaling(VoxelScale(g, conv)))
	a = a.Then(conv.VoxelPost.orIdentity())
	a = a.Then(conv.PositionPre.orIdentity())
	a = a.Then(Translation(Origin(g, conv)))
	return a.Then(conv.PositionPost.orIdentity())
}
