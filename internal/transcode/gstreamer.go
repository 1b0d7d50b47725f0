package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/ajaxzhan/gstfs/pkg/types"
)

// GStreamer runs gst-launch as a child process and streams its standard
// output into the sink. The pipeline specification is placed between a
// source reading the input file and a sink writing to stdout:
//
//	filesrc location=<source> ! <pipeline> ! fdsink fd=1
//
// The pipeline receives the raw file, so it must start with a decoder or
// demuxer, for example "decodebin ! audioconvert ! lamemp3enc".
type GStreamer struct {
	launchPath string
	chunkSize  int
}

// NewGStreamer creates a gst-launch engine. An empty launchPath uses
// gst-launch-1.0 from PATH.
func NewGStreamer(launchPath string) *GStreamer {
	if launchPath == "" {
		launchPath = "gst-launch-1.0"
	}
	return &GStreamer{
		launchPath: launchPath,
		chunkSize:  DefaultChunkSize,
	}
}

// Name returns the name of this engine implementation.
func (g *GStreamer) Name() string {
	return "gstreamer"
}

// SplitPipeline splits a pipeline specification into gst-launch arguments.
// Words are separated by whitespace; single and double quotes group a
// property value containing spaces, e.g. caps="audio/x-raw, rate=44100".
func SplitPipeline(pipeline string) ([]string, error) {
	p := shellwords.NewParser()
	words, err := p.Parse(pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPipelineSyntax, err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("%w: shell operator at position %d", types.ErrPipelineSyntax, p.Position)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty pipeline", types.ErrPipelineSyntax)
	}
	return words, nil
}

// Args builds the gst-launch argument list. gst-launch escapes each
// argument, so the source location and quoted property values may contain
// spaces.
func (g *GStreamer) Args(pipeline, sourcePath string) ([]string, error) {
	words, err := SplitPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	args := []string{"-q", "filesrc", "location=" + sourcePath, "!"}
	args = append(args, words...)
	return append(args, "!", "fdsink", "fd=1"), nil
}

// Transcode implements Engine.
func (g *GStreamer) Transcode(ctx context.Context, pipeline, sourcePath string, sink Sink) error {
	args, err := g.Args(pipeline, sourcePath)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, g.launchPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", g.launchPath, err)
	}

	var sinkErr, readErr error
	buf := make([]byte, g.chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if sinkErr = sink(buf[:n]); sinkErr != nil {
				_ = cmd.Process.Kill()
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	waitErr := cmd.Wait()

	if sinkErr != nil {
		return sinkErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", g.launchPath, waitErr, msg)
		}
		return fmt.Errorf("%s: %w", g.launchPath, waitErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to read transcoder output: %w", readErr)
	}
	return nil
}
