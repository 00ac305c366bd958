package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/tradegate/pkg/nav"
)

// passwordEnv supplies the password when --password is not given.
const passwordEnv = "TRADEGATE_PASSWORD"

const minPasswordLength = 6

func password(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passwordEnv)
}

func (c *cli) signupCmd() *cobra.Command {
	var email, pass string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			pass = password(pass)
			switch {
			case email == "" || pass == "":
				return errors.New("Please fill in all fields.")
			case utf8.RuneCountInString(pass) < minPasswordLength:
				return errors.New("Password must be at least 6 characters.")
			}

			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			if _, err := l.facade.SignUpWithPassword(ctx, email, pass); err != nil {
				return err
			}
			if l.facade.GetSession(ctx) != nil {
				_, _ = fmt.Fprintf(c.stdout, "Signed up and signed in as %s.\n", email)
				return nil
			}
			_, _ = fmt.Fprintln(c.stdout, "Check your email to confirm your account.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pass, "password", "", "account password (default $"+passwordEnv+")")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var email, pass, code string
	var external bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a password or an external provider",
		Long: "Sign in with --email and a password. With --external the command prints the\n" +
			"provider URL to open; finish with --code using the code the provider appends\n" +
			"to the address it returns to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			switch {
			case external:
				rec := &nav.Recorder{}
				l.facade.SignInWithExternalProvider(ctx, rec)
				step, ok := rec.Last()
				if !ok || step.External == "" {
					return errors.New("external sign-in is unavailable")
				}
				_, _ = fmt.Fprintf(c.stdout, "Open this URL to continue:\n%s\n", step.External)
				return nil
			case code != "":
				u, err := l.facade.CompleteExternalSignIn(ctx, code)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.stdout, "Signed in as %s.\n", u.Email)
				return nil
			}

			email = strings.TrimSpace(email)
			pass = password(pass)
			if email == "" || pass == "" {
				return errors.New("Please enter your email and password.")
			}
			u, err := l.facade.SignInWithPassword(ctx, email, pass)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "Signed in as %s.\n", u.Email)
			if l.guard.Landing(ctx) == nav.Settings {
				_, _ = fmt.Fprintln(c.stdout, "Set your home country with `tradegate country set <country>`.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pass, "password", "", "account password (default $"+passwordEnv+")")
	cmd.Flags().BoolVar(&external, "external", false, "start an external provider sign-in")
	cmd.Flags().StringVar(&code, "code", "", "complete an external sign-in with this code")
	cmd.MarkFlagsMutuallyExclusive("external", "code", "email")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			l.facade.SignOut(ctx, &nav.Recorder{})
			_, _ = fmt.Fprintln(c.stdout, "Signed out.")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			m, ok := l.guard.MountSettings(ctx, &nav.Recorder{})
			if !ok {
				return errSignedOut
			}
			home := "not set"
			if m.HomeCountry.Valid() {
				home = m.HomeCountry.Label()
			}
			_, _ = fmt.Fprintf(c.stdout, "Email:         %s\nUser ID:       %s\nHome country:  %s\n",
				m.Email, m.Session.User.ID, home)
			return nil
		},
	}
}

func (c *cli) countryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "country",
		Short: "Show or set the home country",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the saved home country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			m, ok := l.guard.MountSettings(ctx, &nav.Recorder{})
			if !ok {
				return errSignedOut
			}
			if !m.HomeCountry.Valid() {
				_, _ = fmt.Fprintln(c.stdout, "No home country set.")
				return nil
			}
			_, _ = fmt.Fprintln(c.stdout, m.HomeCountry.Label())
			return nil
		},
	}, &cobra.Command{
		Use:   "set <country>",
		Short: "Save the home country used to prefill the exporter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			country, err := lookupCountry(args[0])
			if err != nil {
				return errors.New("Please select a country before saving.")
			}
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			if _, ok := l.guard.Require(ctx, &nav.Recorder{}); !ok {
				return errSignedOut
			}
			if _, err := l.facade.SaveHomeCountry(ctx, country); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "Settings saved! Home country: %s\n", country.Label())
			return nil
		},
	})
	return cmd
}
