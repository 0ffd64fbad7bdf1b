package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "history <room>",
		Short: "Print one page of a room's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size <= 0 {
				size = rt.cfg.PageSize
			}
			room, err := rt.app.Directory().JoinRoom(cmd.Context(), args[0], rt.cfg.User)
			if err != nil {
				return err
			}
			msgs, err := rt.app.History().LoadPage(cmd.Context(), room, page, size)
			if err != nil {
				return err
			}

			v := newView(cmd.OutOrStdout(), cmd.ErrOrStderr())
			if len(msgs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no messages on page %d\n", page)
				return nil
			}
			for _, msg := range msgs {
				v.message(msg)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 0, "page number, 0 is the oldest")
	cmd.Flags().IntVar(&size, "size", 0, "page size (default from config)")
	return cmd
}
