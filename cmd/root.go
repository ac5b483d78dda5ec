package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babelcloud/pushscreen/config"
	"github.com/babelcloud/pushscreen/internal/util"
	"github.com/babelcloud/pushscreen/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "pushscreen",
	Short: "Push or record a device screen and microphone",
	Long: `pushscreen reads the H.264 and AAC encoder output of a device (scrcpy media
sockets or captured dumps), puts both streams on a relative timeline and
either streams them as FLV tags or records them into an MP4 or WebM file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		util.InitLogger(verbose || config.GetVerbose())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("version").Changed {
			info := version.Info()
			fmt.Printf("pushscreen version %s, build %s\n", info["Version"], info["GitCommit"])
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(NewPushCommand())
	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
