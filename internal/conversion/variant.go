package conversion

import (
	"context"
	"fmt"

	"github.com/tinoosan/tubeconv/internal/data"
)

// ContainerMP4 is the container the video stream of an mp4 conversion must use.
const ContainerMP4 = "mp4"

// Transcoder is the transformation tool the variants drive.
type Transcoder interface {
	ExtractAudio(ctx context.Context, input, output string) error
	Mux(ctx context.Context, video, audio, output string) error
}

// StreamSpec binds a tracker destination to the encoding it fetches.
type StreamSpec struct {
	Path     string
	Selector data.Selector
}

// Variant is everything that differs between conversion kinds: the streams
// to fetch and what to run once they are all on disk. Inputs passed to
// Transform are the stream paths in Streams order.
type Variant struct {
	Format    data.Format
	Streams   []StreamSpec
	Transform func(ctx context.Context, inputs []string, output string) error
	// Scratch lists extra files the variant may leave behind.
	Scratch []string
}

// AudioVariant fetches the best audio-only encoding and re-encodes it to MP3.
func AudioVariant(tc Transcoder, audioPath string) Variant {
	return Variant{
		Format: data.FormatMP3,
		Streams: []StreamSpec{
			{Path: audioPath, Selector: data.Selector{Kind: data.KindAudio}},
		},
		Transform: func(ctx context.Context, inputs []string, output string) error {
			if len(inputs) != 1 {
				return fmt.Errorf("audio conversion expects 1 input, got %d", len(inputs))
			}
			return tc.ExtractAudio(ctx, inputs[0], output)
		},
	}
}

// VideoVariant fetches the best audio encoding alongside the video encoding
// matching quality in an mp4 container, then muxes them.
func VideoVariant(tc Transcoder, quality, audioPath, videoPath string) Variant {
	return Variant{
		Format: data.FormatMP4,
		Streams: []StreamSpec{
			{Path: audioPath, Selector: data.Selector{Kind: data.KindAudio}},
			{Path: videoPath, Selector: data.Selector{Kind: data.KindVideo, Quality: quality, Container: ContainerMP4}},
		},
		Transform: func(ctx context.Context, inputs []string, output string) error {
			if len(inputs) != 2 {
				return fmt.Errorf("video conversion expects 2 inputs, got %d", len(inputs))
			}
			return tc.Mux(ctx, inputs[1], inputs[0], output)
		},
	}
}
