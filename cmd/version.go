package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/babelcloud/pushscreen/internal/version"
)

type VersionOptions struct {
	JSON bool
}

func NewVersionCommand() *cobra.Command {
	opts := &VersionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteVersion(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print version information as JSON")
	return cmd
}

func ExecuteVersion(cmd *cobra.Command, opts *VersionOptions) error {
	info := version.Info()
	out := cmd.OutOrStdout()

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	label := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Version:   "), info["Version"])
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Commit:    "), info["GitCommit"])
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Built:     "), info["FormattedTime"])
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Go:        "), info["GoVersion"])
	fmt.Fprintf(out, "%s %s/%s\n", label.Sprint("Platform:  "), info["OS"], info["Arch"])
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Wire:      "), info["Wire"])
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Containers:"), info["Containers"])
	return nil
}
