// Package pipeline provides orchestration for the voxel reconstruction
// pipeline.
//
// It wires together stages from L2-L5 and adapter sinks (persistence,
// recording, monitor) into a per-frame processing flow for both live and
// replayed camera sequences. The pipeline does not own domain logic; it
// delegates to layer packages and adapters.
//
// Frame flow: visibility (l3hull) -> clustering (l4cluster) -> identity
// matching and trail append (l5identity) -> sinks.
package pipeline
