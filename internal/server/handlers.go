package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/goliatone/go-formflow/pkg/mutator"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

type formRequest struct {
	Schema   *schema.Schema  `json:"schema" validate:"required"`
	UISchema schema.UISchema `json:"uiSchema"`
	Data     schema.FormData `json:"data"`
}

type optionsRequest struct {
	formRequest
	Field string `json:"field" validate:"required"`
}

type deriveResponse struct {
	Schema   *schema.Schema        `json:"schema"`
	UISchema schema.UISchema       `json:"uiSchema"`
	Errors   validation.ErrorState `json:"errors,omitempty"`
}

type validateResponse struct {
	Valid   bool                  `json:"valid"`
	Errors  validation.ErrorState `json:"errors,omitempty"`
	Missing []string              `json:"missing,omitempty"`
}

type optionsResponse struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
	Labels []string `json:"labels"`
	Error  string   `json:"error,omitempty"`
}

func bindForm(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

func (r *formRequest) normalize() {
	if r.Data == nil {
		r.Data = schema.FormData{}
	}
	if r.UISchema == nil {
		r.UISchema = schema.UISchema{}
	}
	if r.Schema.Properties == nil {
		r.Schema.Properties = map[string]*schema.Field{}
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) lint(c echo.Context) error {
	var req formRequest
	if err := bindForm(c, &req); err != nil {
		return err
	}
	req.normalize()
	return c.JSON(http.StatusOK, s.validator.Lint(req.Schema, options.GraphCheck))
}

func (s *Server) derive(c echo.Context) error {
	var req formRequest
	if err := bindForm(c, &req); err != nil {
		return err
	}
	req.normalize()
	res := s.mutator.Apply(req.Schema, req.UISchema, req.Data)
	return c.JSON(http.StatusOK, deriveResponse{Schema: res.Schema, UISchema: res.UI, Errors: res.Errors})
}

func (s *Server) validate(c echo.Context) error {
	var req formRequest
	if err := bindForm(c, &req); err != nil {
		return err
	}
	req.normalize()
	res := s.mutator.Apply(req.Schema, req.UISchema, req.Data)
	errs := s.validator.ValidateForm(res.Schema, req.Data, res.UI.HiddenFields()...)
	errs.Merge(res.Errors)
	return c.JSON(http.StatusOK, validateResponse{
		Valid:   errs.Valid(),
		Errors:  errs,
		Missing: mutator.MissingRequired(res.Schema, res.UI, req.Data),
	})
}

func (s *Server) options(c echo.Context) error {
	if s.fetcher == nil {
		return echo.NewHTTPError(http.StatusNotFound, "option previews are disabled")
	}
	var req optionsRequest
	if err := bindForm(c, &req); err != nil {
		return err
	}
	req.normalize()
	if !req.Schema.Has(req.Field) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown field "+req.Field)
	}
	update := s.fetcher.FetchField(c.Request().Context(), req.Schema, s.session, req.Field, req.Data)
	if errors.Is(update.Err, options.ErrHostNotAllowed) {
		return echo.NewHTTPError(http.StatusForbidden, "option url host is not allowed")
	}
	out := optionsResponse{Field: update.Field, Values: update.Values, Labels: update.Labels}
	if update.Err != nil {
		out.Error = update.Err.Error()
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) brandingFor(c echo.Context) error {
	if s.branding == nil {
		return echo.NewHTTPError(http.StatusNotFound, "branding is disabled")
	}
	host := c.QueryParam("host")
	if host == "" {
		host = c.Request().Host
	}
	return c.JSON(http.StatusOK, s.branding.Resolve(c.Request().Context(), host))
}
