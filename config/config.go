package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/babelcloud/pushscreen/internal/capture/container"
	"github.com/babelcloud/pushscreen/internal/capture/packager"
	"github.com/babelcloud/pushscreen/internal/capture/transport"
	"github.com/babelcloud/pushscreen/internal/capture/worker"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// Set default values
	v.SetDefault("pushscreen.home", filepath.Join(xdg.Home, ".pushscreen"))
	v.SetDefault("worker.poll_timeout", worker.DefaultPollTimeout)
	v.SetDefault("timeline.shared_origin", false)
	v.SetDefault("packager.pending_limit", packager.DefaultPendingLimit)
	v.SetDefault("transport.queue_capacity", transport.DefaultQueueCapacity)
	v.SetDefault("transport.ws_write_timeout", transport.DefaultWriteTimeout)
	v.SetDefault("record.format", container.FormatMP4)
	v.SetDefault("record.dir", filepath.Join(xdg.UserDirs.Videos, "pushscreen"))
	v.SetDefault("log.verbose", false)

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("pushscreen.home", "PUSHSCREEN_HOME")
	v.BindEnv("worker.poll_timeout", "PUSHSCREEN_POLL_TIMEOUT")
	v.BindEnv("timeline.shared_origin", "PUSHSCREEN_SHARED_ORIGIN")
	v.BindEnv("packager.pending_limit", "PUSHSCREEN_PENDING_LIMIT")
	v.BindEnv("transport.queue_capacity", "PUSHSCREEN_QUEUE_CAPACITY")
	v.BindEnv("transport.ws_write_timeout", "PUSHSCREEN_WS_WRITE_TIMEOUT")
	v.BindEnv("record.format", "PUSHSCREEN_RECORD_FORMAT")
	v.BindEnv("record.dir", "PUSHSCREEN_RECORD_DIR")
	v.BindEnv("log.verbose", "PUSHSCREEN_VERBOSE", "DEBUG")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		GetHome(),
		"/etc/pushscreen",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// GetHome returns the pushscreen home directory
func GetHome() string {
	return v.GetString("pushscreen.home")
}

// GetPollTimeout returns the encode worker poll timeout
func GetPollTimeout() time.Duration {
	if d := v.GetDuration("worker.poll_timeout"); d > 0 {
		return d
	}
	return worker.DefaultPollTimeout
}

// GetSharedOrigin reports whether audio and video share one timeline origin
func GetSharedOrigin() bool {
	return v.GetBool("timeline.shared_origin")
}

// GetPendingLimit returns how many frames the packager holds per stream
// before the stream format is known
func GetPendingLimit() int {
	return v.GetInt("packager.pending_limit")
}

// GetQueueCapacity returns the transport queue capacity
func GetQueueCapacity() int {
	return v.GetInt("transport.queue_capacity")
}

// GetWSWriteTimeout returns the websocket write timeout
func GetWSWriteTimeout() time.Duration {
	return v.GetDuration("transport.ws_write_timeout")
}

// GetRecordFormat returns the default container format for recordings
func GetRecordFormat() string {
	return v.GetString("record.format")
}

// GetRecordDir returns the directory recordings go to when no output is given
func GetRecordDir() string {
	return v.GetString("record.dir")
}

// GetVerbose reports whether debug logging is enabled
func GetVerbose() bool {
	return v.GetBool("log.verbose")
}
