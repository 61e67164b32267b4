package schema

// Clone returns a deep copy of the schema. Templates are shared because they
// are never modified after decoding.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		Title:       s.Title,
		Description: s.Description,
		Type:        s.Type,
		Required:    cloneStrings(s.Required),
		Order:       cloneStrings(s.Order),
		Meta:        cloneAnyMap(s.Meta),
	}
	if s.Properties != nil {
		out.Properties = make(map[string]*Field, len(s.Properties))
		for name, field := range s.Properties {
			out.Properties[name] = field.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	copied := *f
	copied.Enum = cloneStrings(f.Enum)
	copied.EnumNames = cloneStrings(f.EnumNames)
	copied.MinLength = cloneInt(f.MinLength)
	copied.MaxLength = cloneInt(f.MaxLength)
	copied.CoreField = cloneInt(f.CoreField)
	copied.Default = cloneValue(f.Default)
	if f.Items != nil {
		items := *f.Items
		items.Enum = cloneStrings(f.Items.Enum)
		items.EnumNames = cloneStrings(f.Items.EnumNames)
		copied.Items = &items
	}
	if f.API != nil {
		api := *f.API
		copied.API = &api
	}
	if f.Extra != nil {
		extra := Extra{}
		if f.Extra.SkipAndHide != nil {
			extra.SkipAndHide = make(map[string][]string, len(f.Extra.SkipAndHide))
			for key, names := range f.Extra.SkipAndHide {
				extra.SkipAndHide[key] = cloneStrings(names)
			}
		}
		copied.Extra = &extra
	}
	return &copied
}

// Clone returns a deep copy of the ui schema.
func (ui UISchema) Clone() UISchema {
	if ui == nil {
		return UISchema{}
	}
	out := make(UISchema, len(ui))
	for name, field := range ui {
		copied := field
		copied.Options = cloneAnyMap(field.Options)
		copied.HiddenBy = cloneStrings(field.HiddenBy)
		out[name] = copied
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func cloneInt(in *int) *int {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}
