package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mathewtroy/candle/api"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Handle   string
	Email    string
	Password string
	Avatar   string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "register",
		Short:         "Create an identity",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.RegisterRequest{Handle: opts.Handle, Email: opts.Email, Password: opts.Password}
			if opts.Avatar != "" {
				img, err := readImage(opts.Avatar)
				if err != nil {
					return err
				}
				req.Avatar = img
			}

			client, ctx, closeConn, err := dial(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.Register(ctx, req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.RootOptions, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Registered %s (%s)\n", resp.Identity.Handle, resp.Identity.ID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Handle, "handle", "", "handle, letters and digits")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "path to an avatar image")
	_ = cmd.MarkFlagRequired("handle")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
}

// NewLoginCommand creates the login command. It prints the session token.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "login",
		Short:         "Sign in and print a session token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, closeConn, err := dial(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.SignIn(ctx, &api.SignInRequest{Email: opts.Email, Password: opts.Password})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.RootOptions, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s\n", resp.Identity.Handle)
				fmt.Fprintf(w, "export CANDLE_TOKEN=%s\n", resp.Token)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "End the current session",
		Args:          cobra.NoArgs,
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

			if err := client.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

// NewAvatarCommand creates the avatar command.
func NewAvatarCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "avatar <image>",
		Short:         "Change your avatar and update it on your posts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(rootOpts); err != nil {
				return err
			}
			img, err := readImage(args[0])
			if err != nil {
				return err
			}

			client, ctx, closeConn, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.ChangeAvatar(ctx, &api.ChangeAvatarRequest{Image: *img})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Avatar: %s\n", resp.URL)
				fmt.Fprintf(w, "Posts updated %d, skipped %d, failed %d\n", resp.Updated, resp.Skipped, resp.Failed)
			})
		},
	}
}
