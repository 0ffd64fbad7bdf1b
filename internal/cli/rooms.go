package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRoomsCmd(rt *runtime) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List rooms you created or joined, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := rt.app.Store()
			if st == nil {
				return fmt.Errorf("known rooms store unavailable")
			}
			list, err := st.ListRooms(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no known rooms")
				return nil
			}

			fmt.Fprintf(out, "%-20s %-20s %-12s %s\n", "ROOM", "ENTERED AS", "USER", "LAST JOINED")
			for _, r := range list {
				fmt.Fprintf(out, "%-20s %-20s %-12s %s\n", r.CanonicalID, r.DisplayID, r.User, r.LastJoinedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.AddCommand(newForgetCmd(rt))
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "show at most this many rooms")
	return cmd
}

func newForgetCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <room>",
		Short: "Remove a room from the known rooms list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := rt.app.Store()
			if st == nil {
				return fmt.Errorf("known rooms store unavailable")
			}
			if err := st.ForgetRoom(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}
}
