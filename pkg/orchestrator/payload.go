package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/mutator"
	"github.com/goliatone/go-formflow/pkg/schema"
)

// Custom field names whose values are always submitted as lists.
const (
	customRoles    = "roles"
	customSubRoles = "subRoles"
)

// registrationCodeConfig is the schema meta key naming the field that carries
// the registration code.
const registrationCodeConfig = "registrationCodeConfig"

// manualCodeFields are checked in order when the schema names no code field.
var manualCodeFields = []string{"registrationcode", "Registration Code", "registration_code"}

// Submission is the transformed form payload. Core values are keyed by field
// name in Data; non-core values are listed by attribute id.
type Submission struct {
	Data         map[string]any     `json:"data"`
	CustomFields []auth.CustomField `json:"customFields"`
}

// BuildSubmission turns the form values into a submission payload. Values of
// skip-hidden fields and empty lists are dropped, fields with coreField 0 are
// moved to CustomFields, and name is lower-cased. fieldIDs maps field names
// to attribute ids for fields whose definition carries none. extra values are
// copied to the root of Data first.
func BuildSubmission(s *schema.Schema, ui schema.UISchema, data schema.FormData, fieldIDs map[string]string, extra map[string]any) Submission {
	sub := Submission{Data: make(map[string]any, len(data)+len(extra))}
	for key, value := range extra {
		sub.Data[key] = value
	}

	skipped := make(map[string]struct{})
	for _, name := range mutator.SkipHidden(ui) {
		skipped[name] = struct{}{}
	}

	for _, name := range s.Names() {
		value, ok := data[name]
		if !ok {
			continue
		}
		if _, skip := skipped[name]; skip {
			continue
		}
		if isEmptyList(value) {
			continue
		}
		field, _ := s.Field(name)
		if !field.IsCore() {
			id := field.FieldID
			if id == "" {
				id = fieldIDs[name]
			}
			if id != "" {
				if custom, keep := customField(name, id, value); keep {
					sub.CustomFields = append(sub.CustomFields, custom)
				}
				continue
			}
		}
		if value == nil {
			value = ""
		}
		sub.Data[name] = value
	}

	if name, ok := sub.Data["name"].(string); ok {
		sub.Data["name"] = strings.ToLower(name)
	}
	return sub
}

func customField(name, id string, value any) (auth.CustomField, bool) {
	switch name {
	case customSubRoles:
		list := schema.StringList(value)
		if len(list) == 0 {
			return auth.CustomField{}, false
		}
		return auth.CustomField{FieldID: id, Value: list}, true
	case customRoles:
		return auth.CustomField{FieldID: id, Value: schema.StringList(value)}, true
	}
	if entity, ok := schema.EntityFrom(value); ok {
		raw, err := json.Marshal(struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}{ID: entity.ID, Name: entity.Name})
		if err == nil {
			return auth.CustomField{FieldID: id, Value: string(raw)}, true
		}
	}
	if value == nil {
		value = ""
	}
	return auth.CustomField{FieldID: id, Value: value}, true
}

func isEmptyList(value any) bool {
	switch v := value.(type) {
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// RegistrationCode resolves the code sent with OTP and registration
// requests. The schema meta may name the field and the entity property to
// read; otherwise the manually entered code fields are used.
func RegistrationCode(s *schema.Schema, data schema.FormData) string {
	var meta map[string]any
	if s != nil {
		meta = s.Meta
	}
	if cfg, ok := meta[registrationCodeConfig].(map[string]any); ok {
		if name := schema.Stringify(cfg["name"]); name != "" {
			ref := schema.Stringify(cfg["value_ref"])
			if ref == "" {
				ref = "external_id"
			}
			value := data[name]
			if schema.IsEmpty(value) {
				return ""
			}
			if property, isObject := entityProperty(value, ref); isObject {
				return property
			}
			return strings.TrimSpace(schema.Stringify(value))
		}
	}

	for _, name := range manualCodeFields {
		value, ok := data[name]
		if !ok || value == nil {
			continue
		}
		if entity, isEntity := schema.EntityFrom(value); isEntity {
			return entity.ExternalID
		}
		return strings.TrimSpace(schema.Stringify(value))
	}
	return ""
}

// entityProperty reads ref from an object value. ok is false for scalars.
func entityProperty(value any, ref string) (string, bool) {
	if raw, isMap := value.(map[string]any); isMap {
		if property, found := raw[ref]; found {
			return schema.Stringify(property), true
		}
	}
	entity, ok := schema.EntityFrom(value)
	if !ok {
		return "", false
	}
	switch ref {
	case "_id", "id":
		return entity.ID, true
	case "name":
		return entity.Name, true
	case "externalId", "external_id":
		return entity.ExternalID, true
	default:
		return "", true
	}
}

// NewOTPRequest builds the registration OTP request. Phone details are only
// sent for valid mobile numbers.
func NewOTPRequest(data schema.FormData, code string) auth.OTPRequest {
	req := auth.OTPRequest{
		Name:             fullName(data),
		Email:            data.String(FieldEmail),
		Password:         schema.Stringify(data["password"]),
		RegistrationCode: code,
	}
	if mobile := data.String(FieldMobile); auth.IsMobile(mobile) {
		req.Phone = mobile
		req.PhoneCode = auth.PhoneCode
	}
	return req
}

// NewRegisterRequest builds the account creation request. Location fields
// are sent by entity id; otp 0 means the request is sent without one.
func NewRegisterRequest(data schema.FormData, sub Submission, code string, otp int) auth.RegisterRequest {
	req := auth.RegisterRequest{
		Name:                 fullName(data),
		Username:             data.String(FieldUsername),
		Password:             schema.Stringify(data["password"]),
		Email:                data.String(FieldEmail),
		State:                locationID(data["State"]),
		District:             locationID(data["District"]),
		Block:                locationID(data["Block"]),
		Cluster:              locationID(data["Cluster"]),
		School:               locationID(data["School"]),
		RegistrationCode:     code,
		ProfessionalRole:     schema.OptionKey(data[FieldRole]),
		ProfessionalSubroles: schema.StringList(data[FieldSubRole]),
		OTP:                  otp,
		CustomFields:         sub.CustomFields,
	}
	if req.ProfessionalSubroles == nil {
		req.ProfessionalSubroles = []string{}
	}
	if mobile := data.String(FieldMobile); auth.IsMobile(mobile) {
		req.Phone = mobile
		req.PhoneCode = auth.PhoneCode
	}
	return req
}

func fullName(data schema.FormData) string {
	first, last := data.String("firstName"), data.String("lastName")
	if last == "" {
		return first
	}
	return first + " " + last
}

func locationID(value any) string {
	if entity, ok := schema.EntityFrom(value); ok {
		return entity.ID
	}
	return strings.TrimSpace(schema.Stringify(value))
}
