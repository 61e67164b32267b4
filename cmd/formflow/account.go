package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/prompt"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// maxOTPAttempts bounds the reset OTP prompt.
const maxOTPAttempts = 3

func newBrandingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branding <host>",
		Short: "Resolve the app name and logo shown for a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), a.branding().Resolve(cmd.Context(), args[0]))
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print the profile and tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			driver := a.newDriver()
			if username == "" {
				if username, err = driver.Input(ctx, prompt.InputConfig{Message: "Username, email or mobile"}); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = driver.Password(ctx, prompt.InputConfig{Message: "Password"}); err != nil {
					return err
				}
			}

			result, err := client.Login(ctx, auth.Credentials{Username: username, Password: password}, a.cfg.Tenant.OrgID)
			if err != nil {
				return errors.New(auth.UserMessage(err))
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username, email or mobile")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func newPasswordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password utilities",
	}
	cmd.AddCommand(newPasswordSuggestCmd(), newPasswordResetCmd(a))
	return cmd
}

func newPasswordSuggestCmd() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Generate a password that satisfies the registration policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			suggestion, err := validation.Default().SuggestPassword(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), suggestion)
			return nil
		},
	}
	cmd.Flags().IntVarP(&length, "length", "n", 12, "password length")
	return cmd
}

func newPasswordResetCmd(a *app) *cobra.Command {
	var (
		identifier string
		suggest    bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a forgotten password with an OTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			reset := orchestrator.NewPasswordReset(client,
				orchestrator.WithResetLogger(a.logger),
				orchestrator.WithResetExpiry(a.cfg.OTP.Expiration),
			)
			defer reset.Close()
			return runReset(ctx, cmd, a.newDriver(), reset, identifier, suggest)
		},
	}
	cmd.Flags().StringVarP(&identifier, "identifier", "i", "", "username, email or mobile")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "generate the new password")
	return cmd
}

// resetFlow is the part of *orchestrator.PasswordReset the reset command uses.
type resetFlow interface {
	RequestOTP(ctx context.Context, identifier, password string) error
	Verify(ctx context.Context, code string) error
	Expiry() orchestrator.Countdown
}

var _ resetFlow = (*orchestrator.PasswordReset)(nil)

func runReset(ctx context.Context, cmd *cobra.Command, driver prompt.Driver, reset resetFlow, identifier string, suggest bool) error {
	var err error
	if identifier == "" {
		if identifier, err = driver.Input(ctx, prompt.InputConfig{Message: "Username, email or mobile"}); err != nil {
			return err
		}
	}
	var password string
	if suggest {
		if password, err = validation.Default().SuggestPassword(12); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "new password: %s\n", password)
	} else if password, err = driver.Password(ctx, prompt.InputConfig{Message: "New password"}); err != nil {
		return err
	}

	if err := reset.RequestOTP(ctx, identifier, password); err != nil {
		return resetError(err)
	}

	for attempt := 0; attempt < maxOTPAttempts; attempt++ {
		message := "Enter the OTP"
		if exp := reset.Expiry(); exp.Active {
			message = fmt.Sprintf("Enter the OTP (expires in %s)", exp.Label)
		}
		code, err := driver.Input(ctx, prompt.InputConfig{Message: message})
		if err != nil {
			return err
		}
		err = reset.Verify(ctx, strings.TrimSpace(code))
		if err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "password updated")
			return nil
		}
		if !errors.Is(err, orchestrator.ErrInvalidOTP) {
			return resetError(err)
		}
		if infoErr := driver.Info(ctx, auth.MessageInvalidOTP); infoErr != nil {
			return infoErr
		}
	}
	return errors.New(auth.MessageInvalidOTP)
}

// resetError turns flow errors into the message shown to the user.
func resetError(err error) error {
	var input *orchestrator.InputError
	switch {
	case errors.As(err, &input):
		return errors.New(input.Message)
	case errors.Is(err, orchestrator.ErrOTPExpired):
		return errors.New(auth.MessageOTPExpired)
	}
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) {
		return errors.New(auth.UserMessage(err))
	}
	return err
}
