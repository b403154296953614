package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"imxup/internal/ipc"
)

// newGalleryCommands returns the commands acting on one gallery through the
// daemon: pause, resume, re-enqueue, append and rename. These mutate live
// pipeline state, so there is no offline store fallback.
func newGalleryCommands(ctx *commandContext) []*cobra.Command {
	pauseCmd := &cobra.Command{
		Use:   "pause <galleryID>",
		Short: "Pause a queued or uploading gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGalleryID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Gallery %d pausing\n", id)
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume <galleryID>",
		Short: "Resume a paused gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGalleryID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Resume(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Gallery %d resumed\n", id)
				return nil
			})
		},
	}

	reEnqueueCmd := &cobra.Command{
		Use:   "re-enqueue <galleryID>",
		Short: "Queue the remaining files of an incomplete gallery as a fresh upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGalleryID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReEnqueue(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued gallery %d with %d remaining files\n",
					resp.Item.ID, resp.Item.FileCount)
				return nil
			})
		},
	}

	appendCmd := &cobra.Command{
		Use:   "append <galleryID>",
		Short: "Queue files added to a finished gallery's folder since its upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGalleryID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Append(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued gallery %d with %d new files\n",
					resp.Item.ID, resp.Item.FileCount)
				return nil
			})
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <galleryID> <newName>",
		Short: "Rename a gallery on the primary host",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGalleryID(args[0])
			if err != nil {
				return err
			}
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" {
				return fmt.Errorf("new name is empty")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Rename(id, name)
				if err != nil {
					return err
				}
				if !resp.Accepted {
					return fmt.Errorf("rename queue is full, try again later")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rename of gallery %d queued\n", id)
				return nil
			})
		},
	}

	return []*cobra.Command{pauseCmd, resumeCmd, reEnqueueCmd, appendCmd, renameCmd}
}

func parseGalleryID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid gallery id %q", arg)
	}
	return id, nil
}
