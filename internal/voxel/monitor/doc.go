// Package monitor serves debug views of a running reconstruction: a
// go-echarts floor chart of the current voxels and trails, a JSON status
// endpoint, and gonum/plot trail images.
package monitor
