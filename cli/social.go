package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mathewtroy/candle/api"
)

// SuggestOptions holds flags for the suggest command.
type SuggestOptions struct {
	*RootOptions
	Limit int
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuggestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "suggest <prefix>",
		Short:         "List handles starting with a prefix",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.Suggest(ctx, &api.SuggestRequest{Prefix: args[0], Limit: opts.Limit})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.RootOptions, resp, func(w io.Writer) {
				for _, h := range resp.Handles {
					fmt.Fprintln(w, h)
				}
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of handles (default 5)")

	return cmd
}

// NewWhoisCommand creates the whois command.
func NewWhoisCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whois <handle>",
		Short:         "Look up an identity by handle",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.FindIdentity(ctx, &api.FindIdentityRequest{Handle: args[0]})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts, resp, func(w io.Writer) {
				fmt.Fprintf(w, "%s  id=%s  role=%s  avatar=%s\n",
					resp.Identity.Handle, resp.Identity.ID, resp.Identity.Role, resp.Identity.AvatarURL)
			})
		},
	}
}

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Delete string
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post [content...]",
		Short: "Publish a post, or delete one with --delete",
		Example: `  candle post "hello world"
  candle post --delete 0b6f...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts.RootOptions); err != nil {
				return err
			}
			client, ctx, closeConn, err := dial(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeConn()

			if opts.Delete != "" {
				if err := client.DeletePost(ctx, &api.DeletePostRequest{PostID: opts.Delete}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted post %s\n", opts.Delete)
				return nil
			}

			resp, err := client.CreatePost(ctx, &api.CreatePostRequest{Content: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.RootOptions, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Posted %s\n", resp.Post.ID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Delete, "delete", "", "id of a post to delete")

	return cmd
}

// NewLikeCommand creates the like command.
func NewLikeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "like <post-id>",
		Short:         "Like a post, or remove your like",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(rootOpts); err != nil {
				return err
			}
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.ToggleLike(ctx, &api.ToggleLikeRequest{PostID: args[0]})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts, resp, func(w io.Writer) {
				if resp.Liked {
					fmt.Fprintln(w, "Liked")
				} else {
					fmt.Fprintln(w, "Like removed")
				}
			})
		},
	}
}

// NewFeedCommand creates the feed command. It follows the feed until
// interrupted.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "feed <handle>",
		Short:         "Follow an identity's posts live",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			stream, err := client.SubscribeFeed(ctx, &api.SubscribeFeedRequest{Handle: args[0]})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for {
				update, err := stream.Recv()
				if err != nil {
					if ctx.Err() != nil || status.Code(err) == codes.Canceled {
						return nil
					}
					return err
				}
				if err := render(out, rootOpts, update, func(w io.Writer) { printFeed(w, update) }); err != nil {
					return err
				}
			}
		},
	}
}

func printFeed(w io.Writer, update *api.FeedUpdate) {
	fmt.Fprintf(w, "--- %d posts ---\n", len(update.Posts))
	for _, p := range update.Posts {
		mark := " "
		if p.LikedByViewer {
			mark = "*"
		}
		fmt.Fprintf(w, "%s [%s] %s  (%d likes)  %s\n", mark, p.CreatedAt.Format("2006-01-02 15:04"), p.Content, p.LikeCount, p.ID)
	}
}
