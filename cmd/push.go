package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/pushscreen/config"
	"github.com/babelcloud/pushscreen/internal/capture/container"
	"github.com/babelcloud/pushscreen/internal/capture/packager"
	"github.com/babelcloud/pushscreen/internal/capture/session"
	"github.com/babelcloud/pushscreen/internal/capture/sink"
	"github.com/babelcloud/pushscreen/internal/capture/transport"
)

type PushOptions struct {
	SourceOptions
	To            []string
	QueueCapacity int
}

func NewPushCommand() *cobra.Command {
	opts := &PushOptions{}

	cmd := &cobra.Command{
		Use:   "push --to DEST [--to DEST...] [--video SRC] [--audio SRC]",
		Short: "Stream the device screen and microphone as FLV",
		Long: `Stream the encoder output as FLV tags. Codec configuration is sent before
the first frame of each stream and again whenever the encoder format
changes. When the destination falls behind, frames are dropped but
configuration tags never are.

DEST is a file path, "-" for stdout, or a ws:// or wss:// URL that
receives one FLV tag per binary message. Repeat --to to push to several
destinations; each has its own queue, and one that fails is dropped
without stopping the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecutePush(cmd, opts)
		},
		Example: `  # Pipe into ffplay
  pushscreen push --video tcp://127.0.0.1:27183 --audio tcp://127.0.0.1:27184 --to - | ffplay -

  # Push to a websocket endpoint
  pushscreen push --video tcp://127.0.0.1:27183 --to ws://localhost:8080/live`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Video, "video", "", "Video source (tcp://host:port or file)")
	flags.StringVar(&opts.Audio, "audio", "", "Audio source (tcp://host:port or file)")
	flags.BoolVar(&opts.DeviceName, "device-name", false, "Sources start with a 64-byte device name")
	flags.BoolVar(&opts.SharedOrigin, "shared-origin", false, "Use one timeline origin for audio and video")
	flags.StringArrayVar(&opts.To, "to", nil, "Destination: file path, - for stdout, or ws:// URL (repeatable)")
	flags.IntVar(&opts.QueueCapacity, "queue", 0, "Frames buffered before dropping (default from config)")
	cmd.MarkFlagRequired("to")

	return cmd
}

func ExecutePush(cmd *cobra.Command, opts *PushOptions) error {
	sources, err := opts.sources()
	if err != nil {
		return err
	}

	if len(opts.To) == 0 {
		return errors.New("at least one --to destination is required")
	}

	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = config.GetQueueCapacity()
	}

	fanout := transport.NewFanout()
	queues := make(map[string]*transport.Queue, len(opts.To))
	for _, dest := range opts.To {
		w, err := openTagWriter(cmd.Context(), dest, opts.Audio != "", opts.Video != "")
		if err != nil {
			fanout.Close()
			return err
		}
		q := transport.NewQueue(w, capacity)
		if err := fanout.Add(dest, q); err != nil {
			q.Close()
			fanout.Close()
			return errors.Wrapf(err, "failed to add destination %s", dest)
		}
		queues[dest] = q
	}

	ctrl, err := session.New(session.Config{
		Sources:     sources,
		Clock:       opts.clock(),
		Packager:    packager.NewFLV(packager.Options{PendingLimit: config.GetPendingLimit()}),
		Sink:        sink.NewCollector(fanout),
		PollTimeout: config.GetPollTimeout(),
	})
	if err != nil {
		fanout.Close()
		return errors.Wrap(err, "failed to create session")
	}

	if err := runSession(ctrl); err != nil {
		return err
	}
	for dest, q := range queues {
		st := q.Stats()
		cmd.PrintErrf("  %s: %d enqueued, %d written, %d dropped\n", dest, st.Enqueued, st.Written, st.Dropped)
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func openTagWriter(ctx context.Context, dest string, hasAudio, hasVideo bool) (transport.TagWriter, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case dest == "-":
		return transport.NewFLVWriter(nopCloser{os.Stdout}, hasAudio, hasVideo), nil
	case strings.HasPrefix(dest, "ws://"), strings.HasPrefix(dest, "wss://"):
		ws, err := transport.DialWS(ctx, dest, config.GetWSWriteTimeout())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to connect to %s", dest)
		}
		return ws, nil
	default:
		f, err := container.FileOpener(dest)()
		if err != nil {
			return nil, err
		}
		return transport.NewFLVWriter(f, hasAudio, hasVideo), nil
	}
}
