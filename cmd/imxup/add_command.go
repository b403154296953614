package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"imxup/internal/config"
	"imxup/internal/ipc"
)

type addFlags struct {
	name        string
	thumbSize   int
	contentType int
}

func newAddFlags() *addFlags {
	return &addFlags{}
}

func bindAddFlags(cmd *cobra.Command, flags *addFlags) {
	cmd.Flags().StringVar(&flags.name, "name", "", "Display name for the gallery (defaults to the folder name)")
	cmd.Flags().IntVar(&flags.thumbSize, "thumb-size", 0, "Thumbnail size 1-6 (defaults to the configured value)")
	cmd.Flags().IntVar(&flags.contentType, "content-type", -1, "Content type 0 or 1 (defaults to the configured value)")
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	flags := newAddFlags()
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Queue a gallery folder for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, ctx, args[0], flags)
		},
	}
	bindAddFlags(cmd, flags)
	return cmd
}

func runAdd(cmd *cobra.Command, ctx *commandContext, path string, flags *addFlags) error {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve gallery path: %w", err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return fmt.Errorf("inspect gallery path %q: %w", expanded, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("gallery path %q is not a directory", expanded)
	}

	cfg := ctx.configValue()
	name := strings.TrimSpace(flags.name)
	if name == "" {
		name = filepath.Base(expanded)
	}
	thumbSize := flags.thumbSize
	if thumbSize == 0 && cfg != nil {
		thumbSize = cfg.Primary.ThumbSize
	}
	if thumbSize < 1 || thumbSize > 6 {
		return fmt.Errorf("thumb size %d out of range 1-6", thumbSize)
	}
	contentType := flags.contentType
	if contentType == -1 && cfg != nil {
		contentType = cfg.Primary.ContentType
	}
	if contentType != 0 && contentType != 1 {
		return fmt.Errorf("content type %d must be 0 or 1", contentType)
	}

	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Enqueue(ipc.EnqueueRequest{
			Name:        name,
			SourcePath:  expanded,
			ThumbSize:   thumbSize,
			ContentType: contentType,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued gallery %d: %s\n", resp.Item.ID, resp.Item.Name)
		return nil
	})
}
