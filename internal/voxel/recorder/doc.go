// Package recorder writes processed frames to a length-delimited
// protobuf stream and reads them back for offline inspection.
//
// Each record is a google.protobuf.Struct. The first record is a header
// naming the format version and identity count; every later record is
// one pipeline.FrameResult.
package recorder
