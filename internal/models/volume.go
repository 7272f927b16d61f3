package models

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// LabelVolume represents a segmented 3D volume where every voxel carries an
// integer label (e.g. one label per implanted electrode). Only voxels with
// a non-zero label are stored, so memory follows the labeled voxel count
// rather than the volume size.
type LabelVolume struct {
	// Width, Height, Depth are the voxel dimensions along i, j and k
	Width, Height, Depth int

	// Affine maps homogeneous voxel indices (i, j, k, 1) to world coordinates
	Affine *mat.Dense

	labels map[[3]int]int
}

// NewLabelVolume allocates an empty volume with the given dimensions and an
// identity affine
func NewLabelVolume(width, height, depth int) *LabelVolume {
	affine := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		affine.Set(i, i, 1)
	}
	return &LabelVolume{
		Width:  width,
		Height: height,
		Depth:  depth,
		Affine: affine,
		labels: make(map[[3]int]int),
	}
}

// Contains reports whether (i, j, k) lies inside the volume
func (v *LabelVolume) Contains(i, j, k int) bool {
	return i >= 0 && i < v.Width && j >= 0 && j < v.Height && k >= 0 && k < v.Depth
}

// At returns the label of voxel (i, j, k); unset voxels are 0
func (v *LabelVolume) At(i, j, k int) int {
	return v.labels[[3]int{i, j, k}]
}

// Set assigns a label to voxel (i, j, k). Setting 0 clears the voxel.
func (v *LabelVolume) Set(i, j, k, label int) {
	if !v.Contains(i, j, k) {
		panic("models: voxel index out of range")
	}
	if label == 0 {
		delete(v.labels, [3]int{i, j, k})
		return
	}
	v.labels[[3]int{i, j, k}] = label
}

// Len returns the number of voxels with a non-zero label
func (v *LabelVolume) Len() int {
	return len(v.labels)
}

// Voxels lists the (i, j, k) indices carrying label, in C order (i slowest,
// k fastest). Label 0 selects the unlabeled background and is enumerated
// over the whole grid.
func (v *LabelVolume) Voxels(label int) [][3]int {
	var out [][3]int
	if label == 0 {
		for i := 0; i < v.Width; i++ {
			for j := 0; j < v.Height; j++ {
				for k := 0; k < v.Depth; k++ {
					if _, ok := v.labels[[3]int{i, j, k}]; !ok {
						out = append(out, [3]int{i, j, k})
					}
				}
			}
		}
		return out
	}

	for idx, l := range v.labels {
		if l == label {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x[0] != y[0] {
			return x[0] < y[0]
		}
		if x[1] != y[1] {
			return x[1] < y[1]
		}
		return x[2] < y[2]
	})
	return out
}

// RegionMapping assigns every source vertex to a region index. Negative
// values mark vertices that belong to no region.
type RegionMapping []int

// Concat returns the mapping of a concatenation of two source sets
func (m RegionMapping) Concat(other RegionMapping) RegionMapping {
	out := make(RegionMapping, 0, len(m)+len(other))
	out = append(out, m...)
	return append(out, other...)
}
