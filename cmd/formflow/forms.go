package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/pkg/mutator"
	"github.com/goliatone/go-formflow/pkg/openapi"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

var (
	errLintFailed    = errors.New("lint failed")
	errInvalidValues = errors.New("form values are invalid")
)

func newLintCmd(a *app) *cobra.Command {
	var (
		flags  formFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "lint [source]",
		Short: "Report authoring problems in a form schema",
		Long: `Lint checks required names, patterns, selection limits, option
descriptors and the dependent option graph of a form.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := a.loadForm(cmd.Context(), &flags, args)
			if err != nil {
				return err
			}
			result := validation.Default().Lint(form.bundle.Schema, options.GraphCheck)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				printIssues(out, result)
			}
			if !result.Valid {
				return errLintFailed
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printIssues(w io.Writer, result validation.LintResult) {
	if result.Valid {
		fmt.Fprintln(w, "ok")
		return
	}
	for _, issue := range result.Issues {
		if issue.Path != "" {
			fmt.Fprintf(w, "%s: %s\n", issue.Path, issue.Message)
			continue
		}
		fmt.Fprintln(w, issue.Message)
	}
}

// validateReport is the output of the validate command.
type validateReport struct {
	Valid   bool                  `json:"valid"`
	Errors  validation.ErrorState `json:"errors,omitempty"`
	Missing []string              `json:"missing,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	var (
		flags  formFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "validate [source]",
		Short: "Validate form values against the derived schema",
		Long: `Validate applies the schema rules (guardian fields for minors, sub-role
and custom field visibility, udise requirement) to the values from --data and
reports every error of a visible field.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := a.loadForm(cmd.Context(), &flags, args)
			if err != nil {
				return err
			}
			res := mutator.New().Apply(form.bundle.Schema, form.bundle.UISchema, form.data)
			errs := validation.Default().ValidateForm(res.Schema, form.data, res.UI.HiddenFields()...)
			errs.Merge(res.Errors)
			report := validateReport{
				Valid:   errs.Valid(),
				Errors:  errs,
				Missing: mutator.MissingRequired(res.Schema, res.UI, form.data),
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printErrors(out, res.Schema, report)
			}
			if !report.Valid {
				return errInvalidValues
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printErrors(w io.Writer, s *schema.Schema, report validateReport) {
	if report.Valid {
		fmt.Fprintln(w, "ok")
		return
	}
	for _, name := range s.Names() {
		for _, msg := range report.Errors[name] {
			fmt.Fprintf(w, "%s: %s\n", name, msg)
		}
	}
}

func newDeriveCmd(a *app) *cobra.Command {
	var flags formFlags
	cmd := &cobra.Command{
		Use:   "derive [source]",
		Short: "Print the schema and ui schema derived from form values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := a.loadForm(cmd.Context(), &flags, args)
			if err != nil {
				return err
			}
			res := mutator.New().Apply(form.bundle.Schema, form.bundle.UISchema, form.data)
			return writeJSON(cmd.OutOrStdout(), schema.Bundle{Schema: res.Schema, UISchema: res.UI})
		},
	}
	flags.register(cmd)
	return cmd
}

func newOperationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "operations <openapi>",
		Short: "List the OpenAPI operations usable as forms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := schema.ResolveSource(args[0])
			if err != nil {
				return err
			}
			doc, err := formflow.NewLoader(schema.WithHTTPFallback(a.cfg.Backend.Timeout)).Load(cmd.Context(), src)
			if err != nil {
				return err
			}
			ops, err := formflow.NewParser().Operations(cmd.Context(), doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range openapi.OperationIDs(ops) {
				op := ops[id]
				fmt.Fprintf(out, "%s\t%s %s\t%d fields\n", id, op.Method, op.Path, len(op.Form.Schema.Properties))
			}
			return nil
		},
	}
}
