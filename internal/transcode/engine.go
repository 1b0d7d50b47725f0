// Package transcode drives transcoding engines and accumulates their
// output into cache entries.
package transcode

import (
	"context"
	"fmt"

	"github.com/ajaxzhan/gstfs/pkg/types"
)

// DefaultChunkSize is the read size used when streaming engine output.
const DefaultChunkSize = 64 * 1024

// Sink receives transcoded output. It is called zero or more times with
// consecutive, non-overlapping chunks; the chunk is only valid for the
// duration of the call. A non-nil error aborts the transcode.
type Sink func(chunk []byte) error

// Engine produces the bytes of a source file transcoded under a pipeline
// specification.
type Engine interface {
	// Name returns the name of this engine implementation.
	Name() string

	// Transcode runs until the engine reports completion (nil) or failure.
	Transcode(ctx context.Context, pipeline, sourcePath string, sink Sink) error
}

// Options selects and configures an engine.
type Options struct {
	Engine        string // gstreamer, mp3wav
	GstLaunchPath string // gst-launch binary for the gstreamer engine
}

// New creates the engine named in opts.
func New(opts Options) (Engine, error) {
	switch opts.Engine {
	case "", "gstreamer":
		return NewGStreamer(opts.GstLaunchPath), nil
	case "mp3wav":
		return NewMP3WAV(), nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrEngineNotFound, opts.Engine)
	}
}
