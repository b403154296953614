package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag string
	var configFlag string
	var debugFlag bool
	var guiFlag bool

	ctx := newCommandContext(&socketFlag, &configFlag)
	add := newAddFlags()

	rootCmd := &cobra.Command{
		Use:           "imxup [path]",
		Short:         "Gallery upload queue CLI",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// `imxup <folder>` is shorthand for `imxup add <folder>`.
			if len(args) == 1 {
				return runAdd(cmd, ctx, args[0], add)
			}
			if guiFlag {
				return runStatus(cmd, ctx)
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the imxup daemon socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&guiFlag, "gui", false, "Show the live status view (the graphical shell ships separately)")
	bindAddFlags(rootCmd, add)

	for _, cmd := range newDaemonCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newGalleryCommands(ctx)...)
	rootCmd.AddCommand(newDaemonRunCommand(ctx, &debugFlag))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
