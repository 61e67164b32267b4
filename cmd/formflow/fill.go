package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/prompt"
)

func newFillCmd(a *app) *cobra.Command {
	var (
		flags  formFlags
		submit bool
		skip   []string
	)
	cmd := &cobra.Command{
		Use:   "fill [source]",
		Short: "Fill a form interactively",
		Long: `Fill asks for every visible field of the form. Options of select fields
are fetched from the backend, and fields appear or disappear as answers
change visibility. With --submit the form is submitted afterwards and the
registration OTP is requested and verified.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			form, err := a.loadForm(ctx, &flags, args)
			if err != nil {
				return err
			}

			opts := append(a.sessionOptions(),
				orchestrator.WithOptionSource(a.fetcher()),
				orchestrator.WithFieldIDs(form.fieldIDs),
			)
			if submit {
				client, err := a.client()
				if err != nil {
					return err
				}
				opts = append(opts, orchestrator.WithRegistrar(client))
			}
			session, err := formflow.Open(ctx, form.bundle, form.data, opts...)
			if err != nil {
				return err
			}
			defer session.Close()

			filler := prompt.New(a.newDriver(),
				prompt.WithLogger(a.logger),
				prompt.WithSkip(skip...),
			)
			if err := filler.Fill(ctx, session); err != nil {
				return err
			}
			if !submit {
				return writeJSON(cmd.OutOrStdout(), session.Snapshot().Data)
			}
			if err := filler.Submit(ctx, session); err != nil {
				return err
			}
			snap := session.Snapshot()
			if snap.Registration != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", snap.Registration.User.Username)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&submit, "submit", false, "submit the form and complete the OTP step")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "fields not to ask for")
	return cmd
}
