package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Stringify renders a form value the way option keys and payload values are
// compared: integral numbers without a decimal part, slices joined by commas,
// entities by their external id.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case json.Number:
		return v.String()
	case Entity:
		return v.ExternalID
	case *Entity:
		if v == nil {
			return ""
		}
		return v.ExternalID
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, Stringify(item))
		}
		return strings.Join(parts, ",")
	case map[string]any:
		if entity, ok := EntityFrom(v); ok {
			return entity.ExternalID
		}
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e21 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// StringList flattens a scalar or slice value into its string members.
func StringList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, Stringify(item))
		}
		return out
	default:
		s := Stringify(v)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}

// EntityFrom accepts Entity values or their decoded map form.
func EntityFrom(value any) (Entity, bool) {
	switch v := value.(type) {
	case Entity:
		return v, true
	case *Entity:
		if v == nil {
			return Entity{}, false
		}
		return *v, true
	case map[string]any:
		_, hasID := v["_id"]
		_, hasExternal := v["externalId"]
		_, hasSnake := v["external_id"]
		if !hasID && !hasExternal && !hasSnake {
			return Entity{}, false
		}
		entity := Entity{
			ID:         Stringify(v["_id"]),
			Name:       Stringify(v["name"]),
			ExternalID: Stringify(v["externalId"]),
		}
		if entity.ExternalID == "" {
			entity.ExternalID = Stringify(v["external_id"])
		}
		if entity.ID == "" {
			entity.ID = Stringify(v["id"])
		}
		return entity, true
	default:
		return Entity{}, false
	}
}

// ValuesEqual compares two form values, treating []string and []any with the
// same members as equal.
func ValuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []string:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out
	case *Entity:
		if v == nil {
			return nil
		}
		return *v
	case map[string]any:
		if entity, ok := EntityFrom(v); ok {
			return entity
		}
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}

// Clone returns a deep copy of the data map.
func (d FormData) Clone() FormData {
	if d == nil {
		return FormData{}
	}
	out := make(FormData, len(d))
	for key, value := range d {
		out[key] = cloneValue(value)
	}
	return out
}

// String returns the value of name rendered with Stringify.
func (d FormData) String(name string) string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(Stringify(d[name]))
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]any, len(v))
		for idx, item := range v {
			out[idx] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case *Entity:
		if v == nil {
			return v
		}
		copied := *v
		return &copied
	default:
		return v
	}
}

// OptionKey renders a value the way it is matched against enumeration values
// and substituted into dependent payloads: entities by _id (falling back to
// externalId), everything else through Stringify.
func OptionKey(value any) string {
	if entity, ok := EntityFrom(value); ok {
		if entity.ID != "" {
			return entity.ID
		}
		return entity.ExternalID
	}
	return strings.TrimSpace(Stringify(value))
}

// IsEmpty reports whether a form value counts as not provided: nil, blank
// strings, empty slices, and maps or entities whose every property is empty.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case Entity:
		return v.IsZero()
	case *Entity:
		return v == nil || v.IsZero()
	case map[string]any:
		for _, item := range v {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
