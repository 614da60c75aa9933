package l3hull

import (
	"image"

	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
)

// NearestVisible returns the visible voxel closest to camera among those
// projecting onto pt. Ties go to the earliest record entry. ok is false
// when no mapped voxel is visible.
func NearestVisible(s *l2space.Space, camera int, pt image.Point) (voxel int32, ok bool) {
	r := s.Record(camera, pt)
	if r == nil {
		return -1, false
	}
	voxel = -1
	var best float32
	for i, vi := range r.Voxels {
		if !s.Voxels[vi].Visible {
			continue
		}
		if d := r.Distances[i]; voxel < 0 || d < best {
			voxel, best = vi, d
		}
	}
	return voxel, voxel >= 0
}

// IsNearestVisible reports whether voxel is the visible surface point
// camera sees along its ray. It is false when voxel has no valid
// projection for camera; the projection is not read in that case.
func IsNearestVisible(s *l2space.Space, voxel int32, camera int) bool {
	v := &s.Voxels[voxel]
	if camera < 0 || camera >= len(v.Valid) || !v.Valid[camera] {
		return false
	}
	nearest, ok := NearestVisible(s, camera, v.Projections[camera])
	return ok && nearest == voxel
}
