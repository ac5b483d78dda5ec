package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/babelcloud/pushscreen/config"
	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/scrcpy"
	"github.com/babelcloud/pushscreen/internal/capture/session"
	"github.com/babelcloud/pushscreen/internal/capture/timeline"
	"github.com/babelcloud/pushscreen/internal/util"
)

// SourceOptions are the input flags shared by push and record.
type SourceOptions struct {
	Video        string
	Audio        string
	DeviceName   bool
	SharedOrigin bool
}

func (o *SourceOptions) sources() ([]core.Source, error) {
	var sources []core.Source
	for _, in := range []struct {
		kind core.StreamKind
		addr string
	}{
		{core.Video, o.Video},
		{core.Audio, o.Audio},
	} {
		if in.addr == "" {
			continue
		}
		open, err := scrcpy.NewOpener(in.addr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s source", in.kind)
		}
		sources = append(sources, scrcpy.NewSource(in.kind, open, scrcpy.Options{DeviceName: o.DeviceName}))
	}
	if len(sources) == 0 {
		return nil, errors.New("at least one of --video and --audio is required")
	}
	return sources, nil
}

func (o *SourceOptions) clock() *timeline.Synchronizer {
	return timeline.NewSynchronizer(timeline.Options{
		SharedOrigin: o.SharedOrigin || config.GetSharedOrigin(),
	})
}

// runSession starts ctrl and blocks until it ends. SIGINT and SIGTERM
// request a stop.
func runSession(ctrl *session.Controller) error {
	logger := util.GetLogger()
	started := time.Now()

	if err := ctrl.Start(context.Background()); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal", "signal", sig.String())
			ctrl.RequestStop("signal " + sig.String())
		case <-ctrl.Done():
		}
	}()

	err := ctrl.Wait()
	printSummary(ctrl, time.Since(started), err)
	return err
}

// printSummary writes to stderr since stdout may carry the stream.
func printSummary(ctrl *session.Controller, elapsed time.Duration, err error) {
	out := os.Stderr
	status := color.New(color.FgGreen, color.Bold).Sprint("done")
	if err != nil {
		status = color.New(color.FgRed, color.Bold).Sprint("failed")
	}

	fmt.Fprintf(out, "\nSession %s %s after %s (%s)\n",
		color.CyanString(ctrl.ID()), status, elapsed.Round(time.Millisecond), ctrl.Reason())
	for kind, st := range ctrl.Stats() {
		fmt.Fprintf(out, "  %-5s %d units, %d tags, %d format changes, last ts %s\n",
			kind.String(), st.Units, st.Tags, st.FormatChanges, st.LastTimestamp)
	}
	if err != nil {
		fmt.Fprintf(out, "  %s %v\n", color.RedString("error:"), err)
	}
}
