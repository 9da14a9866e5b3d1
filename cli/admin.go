package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mathewtroy/candle/api"
)

// NewAdminCommand creates the admin command group.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Moderate identities (admin role required)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root := cmd.Root(); root.PersistentPreRunE != nil {
				if err := root.PersistentPreRunE(cmd, args); err != nil {
					return err
				}
			}
			return requireToken(rootOpts)
		},
	}

	cmd.AddCommand(newAdminListCommand(rootOpts))
	cmd.AddCommand(newAdminSetRoleCommand(rootOpts))
	cmd.AddCommand(newAdminDeleteCommand(rootOpts))
	cmd.AddCommand(newAdminReconcileCommand(rootOpts))

	return cmd
}

func newAdminListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List every identity",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.ListIdentities(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts, resp, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tHANDLE\tEMAIL\tROLE")
				for _, ident := range resp.Identities {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ident.ID, ident.Handle, ident.Email, ident.Role)
				}
				_ = tw.Flush()
			})
		},
	}
}

func newAdminSetRoleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-role <identity-id> <user|admin>",
		Short:         "Change an identity's role",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			if err := client.SetRole(ctx, &api.SetRoleRequest{IdentityID: args[0], Role: args[1]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role of %s set to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newAdminDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <identity-id>",
		Short:         "Delete an identity and the posts it authored",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.DeleteIdentity(ctx, &api.DeleteIdentityRequest{IdentityID: args[0]})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s: %d posts removed, %d failed\n", args[0], resp.PostsDeleted, resp.PostsFailed)
			})
		},
	}
}

func newAdminReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var postID string

	cmd := &cobra.Command{
		Use:           "reconcile",
		Short:         "Ask the server to recount like counters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.ReconcileLikes(ctx, &api.ReconcileLikesRequest{PostID: postID})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts, resp, func(w io.Writer) {
				if postID != "" {
					fmt.Fprintf(w, "Post %s has %d likes\n", postID, resp.LikeCount)
					return
				}
				fmt.Fprintf(w, "Checked %d posts, fixed %d, failed %d\n", resp.Checked, resp.Fixed, resp.Failed)
			})
		},
	}

	cmd.Flags().StringVar(&postID, "post", "", "recount a single post")

	return cmd
}
