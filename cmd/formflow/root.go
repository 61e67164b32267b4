package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/internal/logging"
	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/prompt"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
	newDriver  func() prompt.Driver
}

func newRootCmd() *cobra.Command {
	a := &app{newDriver: prompt.NewSurveyDriver}
	root := &cobra.Command{
		Use:   "formflow",
		Short: "Load, check and fill dynamic registration forms",
		Long: `formflow works with schema-driven registration forms.

Forms are read from a JSON or YAML bundle ({schema, uiSchema}), from an
OpenAPI operation request body, or from the schema service of the backend.

Examples:
  formflow lint forms/registration.yaml
  formflow validate forms/registration.yaml --data answers.yaml
  formflow fill --service --submit
  formflow serve --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./formflow.yaml when present)")

	root.AddCommand(
		newLintCmd(a),
		newValidateCmd(a),
		newDeriveCmd(a),
		newOperationsCmd(a),
		newFillCmd(a),
		newServeCmd(a),
		newBrandingCmd(a),
		newLoginCmd(a),
		newPasswordCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) session() session.Context {
	return session.New(
		session.WithTenant(a.cfg.Tenant.ID, a.cfg.Tenant.Code),
		session.WithOrg(a.cfg.Tenant.OrgID),
		session.WithAcademicYear(a.cfg.Tenant.AcademicYear),
	)
}

func (a *app) client() (*auth.Client, error) {
	if a.cfg.Backend.BaseURL == "" {
		return nil, errors.New("backend.base_url is not configured")
	}
	return auth.New(a.cfg.Backend.BaseURL,
		auth.WithEndpoints(a.cfg.Backend.Endpoints),
		auth.WithTimeout(a.cfg.Backend.Timeout),
		auth.WithLogger(a.logger.WithField("component", "auth")),
	)
}

func (a *app) fetcher(opts ...options.Option) *options.Fetcher {
	base := []options.Option{
		options.WithLogger(a.logger.WithField("component", "options")),
		options.WithRequestTimeout(a.cfg.Backend.Timeout),
	}
	if a.cfg.Backend.BaseURL != "" {
		base = append(base, options.WithBaseURL(a.cfg.Backend.BaseURL))
	}
	return options.New(append(base, opts...)...)
}

// sessionOptions are the orchestrator options derived from configuration.
func (a *app) sessionOptions() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithSession(a.session()),
		orchestrator.WithOTP(a.cfg.OTP.Required),
		orchestrator.WithOTPTimers(a.cfg.OTP.ResendCooldown, a.cfg.OTP.Expiration),
		orchestrator.WithRateLimit(a.cfg.OTP.MaxAttempts, a.cfg.OTP.Window),
	}
}

// formFlags select the form a command works on.
type formFlags struct {
	operation string
	service   bool
	formType  string
	subType   string
	data      string
}

func (f *formFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.operation, "operation", "", "treat the source as OpenAPI and use this operation's request body")
	cmd.Flags().BoolVar(&f.service, "service", false, "read the form from the backend schema service")
	cmd.Flags().StringVar(&f.formType, "type", "user", "schema service form type")
	cmd.Flags().StringVar(&f.subType, "subtype", "registration", "schema service form sub type")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "JSON or YAML file with form values")
}

// loadedForm is a resolved form plus its prefill.
type loadedForm struct {
	bundle   schema.Bundle
	fieldIDs map[string]string
	data     schema.FormData
}

func (a *app) loadForm(ctx context.Context, f *formFlags, args []string) (loadedForm, error) {
	var out loadedForm
	switch {
	case f.service:
		client, err := a.client()
		if err != nil {
			return out, err
		}
		conv, err := formflow.LoadFromService(ctx, client, auth.SchemaQuery{
			Type:       f.formType,
			SubType:    f.subType,
			TenantCode: a.cfg.Tenant.Code,
		})
		if err != nil {
			return out, err
		}
		out.bundle = schema.Bundle{Schema: conv.Schema, UISchema: conv.UI}
		out.fieldIDs = conv.FieldIDs
	case len(args) == 1:
		bundle, err := formflow.LoadBundle(ctx, formflow.Request{
			Ref:       args[0],
			Operation: f.operation,
			Loader: []schema.LoaderOption{
				schema.WithHTTPFallback(a.cfg.Backend.Timeout),
				schema.WithRequestHeader("tenantCode", a.cfg.Tenant.Code),
			},
		})
		if err != nil {
			return out, err
		}
		out.bundle = bundle
	default:
		return out, errors.New("a form source or --service is required")
	}

	data, err := readData(f.data)
	if err != nil {
		return out, err
	}
	out.data = data
	return out, nil
}

func readData(path string) (schema.FormData, error) {
	if path == "" {
		return schema.FormData{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	data := schema.FormData{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode data %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
