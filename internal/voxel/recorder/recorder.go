package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
)

// Format identifies recordings in their header record.
const (
	Format  = "voxel.report/frames"
	Version = 1
)

// ErrBadHeader is returned when a stream does not start with a
// recognised header.
var ErrBadHeader = errors.New("not a voxel frame recording")

// Recorder appends frames to a stream. It implements pipeline.FrameSink
// and is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	frames int
}

var _ pipeline.FrameSink = (*Recorder)(nil)

// NewRecorder writes the header for k identities to w and returns a
// recorder appending to it.
func NewRecorder(w io.Writer, k int) (*Recorder, error) {
	r := &Recorder{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	header, err := structpb.NewStruct(map[string]interface{}{
		"format":  Format,
		"version": Version,
		"k":       k,
	})
	if err != nil {
		return nil, fmt.Errorf("build header: %w", err)
	}
	if _, err := protodelim.MarshalTo(r.w, header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return r, nil
}

// Create creates (truncating) the file at path and records into it.
func Create(path string, k int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	r, err := NewRecorder(f, k)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// RecordFrame implements pipeline.FrameSink.
func (r *Recorder) RecordFrame(_ context.Context, res *pipeline.FrameResult) error {
	msg, err := Encode(res)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := protodelim.MarshalTo(r.w, msg); err != nil {
		return fmt.Errorf("write frame %d: %w", res.Index, err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Flush writes buffered records to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Flush()
}

// Close flushes and, when the underlying writer is a Closer, closes it.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.w.Flush()
	if r.closer != nil {
		err = errors.Join(err, r.closer.Close())
		r.closer = nil
	}
	return err
}

// Replay reads frames back from a recording.
type Replay struct {
	r      *bufio.Reader
	closer io.Closer
	k      int
}

// NewReplay reads and checks the header from r.
func NewReplay(r io.Reader) (*Replay, error) {
	rp := &Replay{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		rp.closer = c
	}
	var header structpb.Struct
	if err := protodelim.UnmarshalFrom(rp.r, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	fields := header.GetFields()
	if fields["format"].GetStringValue() != Format {
		return nil, fmt.Errorf("%w: format %q", ErrBadHeader, fields["format"].GetStringValue())
	}
	if v := int(fields["version"].GetNumberValue()); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, v)
	}
	rp.k = int(fields["k"].GetNumberValue())
	return rp, nil
}

// Open opens a recording file for replay.
func Open(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	rp, err := NewReplay(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rp, nil
}

// K returns the identity count from the header.
func (rp *Replay) K() int { return rp.k }

// Next returns the next frame, or io.EOF at the end of the recording.
func (rp *Replay) Next() (*pipeline.FrameResult, error) {
	var msg structpb.Struct
	if err := protodelim.UnmarshalFrom(rp.r, &msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return Decode(&msg)
}

// ReadAll returns every remaining frame.
func (rp *Replay) ReadAll() ([]*pipeline.FrameResult, error) {
	var out []*pipeline.FrameResult
	for {
		res, err := rp.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
}

// Close closes the underlying reader when it is a Closer.
func (rp *Replay) Close() error {
	if rp.closer == nil {
		return nil
	}
	err := rp.closer.Close()
	rp.closer = nil
	return err
}
