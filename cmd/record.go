package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/pushscreen/config"
	"github.com/babelcloud/pushscreen/internal/capture/container"
	"github.com/babelcloud/pushscreen/internal/capture/packager"
	"github.com/babelcloud/pushscreen/internal/capture/session"
	"github.com/babelcloud/pushscreen/internal/capture/sink"
)

type RecordOptions struct {
	SourceOptions
	Output string
	Format string
}

func NewRecordCommand() *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "record --video SRC --audio SRC [--output FILE] [--format mp4|webm]",
		Short: "Record the device screen and microphone to a file",
		Long: `Record both streams into one container file. The file is created once the
formats of both streams are known; samples that arrive earlier are not
written, and video starts at the first key frame.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteRecord(cmd, opts)
		},
		Example: `  # Record to the default videos directory
  pushscreen record --video tcp://127.0.0.1:27183 --audio tcp://127.0.0.1:27184

  # Record a WebM file
  pushscreen record --video video.bin --audio audio.bin --format webm -o out.webm`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Video, "video", "", "Video source (tcp://host:port or file)")
	flags.StringVar(&opts.Audio, "audio", "", "Audio source (tcp://host:port or file)")
	flags.BoolVar(&opts.DeviceName, "device-name", false, "Sources start with a 64-byte device name")
	flags.BoolVar(&opts.SharedOrigin, "shared-origin", false, "Use one timeline origin for audio and video")
	flags.StringVarP(&opts.Output, "output", "o", "", "Output file (default: a timestamped file in the record directory)")
	flags.StringVar(&opts.Format, "format", "", "Container format: mp4 or webm (default from config)")

	return cmd
}

func ExecuteRecord(cmd *cobra.Command, opts *RecordOptions) error {
	if opts.Video == "" || opts.Audio == "" {
		return errors.New("record needs both --video and --audio")
	}
	sources, err := opts.sources()
	if err != nil {
		return err
	}

	format := opts.Format
	if format == "" {
		format = config.GetRecordFormat()
	}
	output := opts.Output
	if output == "" {
		output = defaultRecordPath(config.GetRecordDir(), format, time.Now())
	}

	writer, err := container.New(format, container.FileOpener(output))
	if err != nil {
		return errors.Wrap(err, "failed to create container writer")
	}
	muxer := sink.NewMuxer(writer)

	ctrl, err := session.New(session.Config{
		Sources:     sources,
		Clock:       opts.clock(),
		Packager:    packager.NewSample(packager.Options{PendingLimit: config.GetPendingLimit()}),
		Sink:        muxer,
		PollTimeout: config.GetPollTimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}

	if err := runSession(ctrl); err != nil {
		return err
	}
	if !muxer.Opened() {
		cmd.PrintErrln("  no file written: a stream never reported its format")
		return nil
	}
	cmd.PrintErrf("  recorded to %s\n", output)
	return nil
}

func defaultRecordPath(dir, format string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("pushscreen-%s.%s", now.Format("20060102-150405"), format))
}
