package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mathewtroy/candle/config"
	"github.com/mathewtroy/candle/repository"
	"github.com/mathewtroy/candle/service"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	PostID string
}

// NewReconcileCommand creates the reconcile command. It talks to the
// document store directly and needs no running server.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "reconcile",
		Short:        "Recount like counters from the like records",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.PostID, "post", "", "recount a single post")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}

	dbConn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	store, err := openStore(ctx, cfg, dbConn, false)
	if err != nil {
		return err
	}
	defer store.Close()

	reconciler := service.NewReconciler(repository.NewPostRepository(store), repository.NewLikeRepository(store))
	out := cmd.OutOrStdout()

	if opts.PostID != "" {
		n, err := reconciler.RecountPost(ctx, opts.PostID)
		if err != nil {
			return err
		}
		return render(out, opts.RootOptions, map[string]any{"postId": opts.PostID, "likeCount": n}, func(w io.Writer) {
			fmt.Fprintf(w, "Post %s has %d likes\n", opts.PostID, n)
		})
	}

	report, err := reconciler.RecountAll(ctx)
	if err != nil {
		return err
	}
	return render(out, opts.RootOptions, report, func(w io.Writer) {
		fmt.Fprintf(w, "Checked %d posts, fixed %d, failed %d\n", report.Checked, report.Fixed, report.Failed)
	})
}
