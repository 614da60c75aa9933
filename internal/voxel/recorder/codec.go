package recorder

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/voxel.report/internal/voxel/l3hull"
	"github.com/banshee-data/voxel.report/internal/voxel/l5identity"
	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
)

// Encode converts a frame result to a Struct. Timestamps are stored as
// RFC 3339 strings because Struct numbers are doubles.
func Encode(res *pipeline.FrameResult) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"index":       res.Index,
		"timestamp":   res.Timestamp.UTC().Format(time.RFC3339Nano),
		"state":       int(res.State),
		"mode":        int(res.Mode),
		"visible":     indexList(res.Visible),
		"retained":    indexList(res.Retained),
		"labels":      intList(res.Labels),
		"centers":     vecList(res.Centers),
		"total":       res.Total,
		"degenerate":  res.Degenerate,
		"duration_ns": res.Duration.Nanoseconds(),
	}
	if res.Assignment != nil {
		dist := make([]interface{}, len(res.Assignment.Distances))
		for i, row := range res.Assignment.Distances {
			dist[i] = floatList(row)
		}
		m["assignment"] = map[string]interface{}{
			"identity":  intList(res.Assignment.Identity),
			"distances": dist,
			"total":     res.Assignment.Total,
		}
	}
	if res.Histograms != nil {
		m["histograms"] = histogramList(res.Histograms)
	}
	if res.References != nil {
		m["references"] = histogramList(res.References)
	}

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", res.Index, err)
	}
	return s, nil
}

// Decode converts a Struct written by Encode back to a frame result.
func Decode(s *structpb.Struct) (*pipeline.FrameResult, error) {
	f := s.GetFields()
	ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}
	res := &pipeline.FrameResult{
		Index:      int(f["index"].GetNumberValue()),
		Timestamp:  ts,
		State:      l5identity.State(f["state"].GetNumberValue()),
		Mode:       l3hull.Mode(f["mode"].GetNumberValue()),
		Visible:    indices(f["visible"]),
		Retained:   indices(f["retained"]),
		Labels:     ints(f["labels"]),
		Centers:    vecs(f["centers"]),
		Total:      f["total"].GetNumberValue(),
		Degenerate: f["degenerate"].GetBoolValue(),
		Duration:   time.Duration(f["duration_ns"].GetNumberValue()),
	}
	if a := f["assignment"].GetStructValue(); a != nil {
		af := a.GetFields()
		assignment := &l5identity.Assignment{
			Identity: ints(af["identity"]),
			Total:    af["total"].GetNumberValue(),
		}
		for _, row := range af["distances"].GetListValue().GetValues() {
			assignment.Distances = append(assignment.Distances, floats(row))
		}
		res.Assignment = assignment
	}
	if v, ok := f["histograms"]; ok {
		if res.Histograms, err = histograms(v); err != nil {
			return nil, err
		}
	}
	if v, ok := f["references"]; ok {
		if res.References, err = histograms(v); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func indexList(v []int32) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func intList(v []int) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func floatList(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func vecList(v []r2.Vec) []interface{} {
	out := make([]interface{}, len(v))
	for i, c := range v {
		out[i] = []interface{}{c.X, c.Y}
	}
	return out
}

func histogramList(hs []l5identity.Histogram) []interface{} {
	out := make([]interface{}, len(hs))
	for i, h := range hs {
		out[i] = intList(h[:])
	}
	return out
}

func indices(v *structpb.Value) []int32 {
	vals := v.GetListValue().GetValues()
	if vals == nil {
		return nil
	}
	out := make([]int32, len(vals))
	for i, x := range vals {
		out[i] = int32(x.GetNumberValue())
	}
	return out
}

func ints(v *structpb.Value) []int {
	vals := v.GetListValue().GetValues()
	if vals == nil {
		return nil
	}
	out := make([]int, len(vals))
	for i, x := range vals {
		out[i] = int(x.GetNumberValue())
	}
	return out
}

func floats(v *structpb.Value) []float64 {
	vals := v.GetListValue().GetValues()
	if vals == nil {
		return nil
	}
	out := make([]float64, len(vals))
	for i, x := range vals {
		out[i] = x.GetNumberValue()
	}
	return out
}

func vecs(v *structpb.Value) []r2.Vec {
	vals := v.GetListValue().GetValues()
	if vals == nil {
		return nil
	}
	out := make([]r2.Vec, len(vals))
	for i, x := range vals {
		xy := floats(x)
		if len(xy) == 2 {
			out[i] = r2.Vec{X: xy[0], Y: xy[1]}
		}
	}
	return out
}

func histograms(v *structpb.Value) ([]l5identity.Histogram, error) {
	vals := v.GetListValue().GetValues()
	out := make([]l5identity.Histogram, len(vals))
	for i, x := range vals {
		bins := ints(x)
		if len(bins) != l5identity.NumBins {
			return nil, fmt.Errorf("histogram %d has %d bins, want %d", i, len(bins), l5identity.NumBins)
		}
		copy(out[i][:], bins)
	}
	return out, nil
}
