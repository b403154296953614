package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"imxup/internal/ipc"
	"imxup/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the gallery queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var stats map[string]int
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					stats = status.QueueStats
				} else {
					storeStats, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					stats = map[string]int{
						"queued":     storeStats.Queued,
						"uploading":  storeStats.Uploading,
						"paused":     storeStats.Paused,
						"completed":  storeStats.Completed,
						"failed":     storeStats.Failed,
						"incomplete": storeStats.Incomplete,
					}
				}

				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStates []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued galleries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var items []ipc.GalleryItem
				if client != nil {
					resp, err := client.QueueList(listStates)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					var states []queue.State
					for _, raw := range listStates {
						parsed, ok := queue.ParseState(raw)
						if !ok {
							return fmt.Errorf("unknown state %q", raw)
						}
						states = append(states, parsed)
					}
					galleries, err := store.List(cmd.Context(), states...)
					if err != nil {
						return err
					}
					items = galleryItemsFromStore(galleries)
				}

				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Name", "State", "Files", "Progress", "Created"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStates, "state", "s", nil, "Filter by gallery state (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <galleryID>",
		Short: "Show one gallery in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gallery id %q", args[0])
			}
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.GalleryItem
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					gallery, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if gallery == nil {
						return fmt.Errorf("gallery %d not found", id)
					}
					item = ipc.FromGallery(gallery)
				}
				printGalleryDetail(cmd, item)
				return nil
			})
		},
	}
}

func printGalleryDetail(cmd *cobra.Command, item ipc.GalleryItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Gallery %d: %s\n", item.ID, item.Name)
	fmt.Fprintf(out, "  State:      %s\n", item.State)
	if item.ResumeState != "" {
		fmt.Fprintf(out, "  Resumes to: %s\n", item.ResumeState)
	}
	fmt.Fprintf(out, "  Source:     %s\n", item.SourcePath)
	fmt.Fprintf(out, "  Files:      %d\n", item.FileCount)
	if item.TotalBytes > 0 {
		fmt.Fprintf(out, "  Progress:   %s\n", formatProgress(item.DoneBytes, item.TotalBytes))
	}
	if item.HostGalleryID != "" {
		fmt.Fprintf(out, "  Host ID:    %s\n", item.HostGalleryID)
	}
	if item.GalleryURL != "" {
		fmt.Fprintf(out, "  URL:        %s\n", item.GalleryURL)
	}
	if item.TemplatePath != "" {
		fmt.Fprintf(out, "  Template:   %s\n", item.TemplatePath)
	}
	if item.ArchivePath != "" {
		fmt.Fprintf(out, "  Archive:    %s\n", item.ArchivePath)
	}
	if item.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:      %s (%s)\n", item.ErrorMessage, item.ErrorKind)
	}
	if item.OriginID > 0 {
		fmt.Fprintf(out, "  Origin:     %d\n", item.OriginID)
	}
	fmt.Fprintf(out, "  Created:    %s\n", formatTimestamp(item.CreatedAt))
	fmt.Fprintf(out, "  Updated:    %s\n", formatTimestamp(item.UpdatedAt))
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove galleries from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				switch {
				case clearCompleted:
					if client != nil {
						var resp *ipc.QueueClearCompletedResponse
						resp, err = client.QueueClearCompleted()
						if err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.ClearCompleted(cmd.Context())
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed galleries\n", removed)
				case clearFailed:
					if client != nil {
						var resp *ipc.QueueClearFailedResponse
						resp, err = client.QueueClearFailed()
						if err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.ClearFailed(cmd.Context())
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed galleries\n", removed)
				default:
					if client != nil {
						var resp *ipc.QueueClearResponse
						resp, err = client.QueueClear()
						if err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.Clear(cmd.Context())
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d galleries\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed galleries")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed galleries")
	return cmd
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return stranded uploading galleries to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				var err error
				if client != nil {
					var resp *ipc.QueueResetResponse
					resp, err = client.QueueReset()
					if err == nil {
						updated = resp.Updated
					}
				} else {
					updated, err = store.ResetStuckUploading(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d galleries\n", updated)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <galleryID...>",
		Short: "Remove specific galleries from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid gallery id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				if client != nil {
					resp, err := client.QueueRemove(ids)
					if err != nil {
						return err
					}
					removed = resp.Removed
				} else {
					for _, id := range ids {
						ok, err := store.Remove(cmd.Context(), id)
						if err != nil {
							return err
						}
						if ok {
							removed++
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d galleries\n", removed)
				return nil
			})
		},
	}
}
