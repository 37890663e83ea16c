/*
	Package bv provides types, constants, and functions that have no other dependencies
	and can be used by all packages within bioview.  This includes leveled logging,
	integer geometry for voxels and tiles, pixel sample types, and physical lengths.
	Since these elements are used at multiple layers, we separate them here and allow
	reuse in layer-specific types through embedding.
*/
package bv
