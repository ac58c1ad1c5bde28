// Package normalize converts the platform's loosely-typed form field payloads
// into the ordered, label-resolved document model. It is pure data
// transformation: no I/O, no errors. Malformed input degrades to empty or
// placeholder values instead of failing.
package normalize

import (
	"fmt"

	"github.com/sitedocs/formexport/pkg/models"
)

// Fallback labels applied when neither the id mapping nor the record itself
// carries a usable label.
const (
	fallbackFieldLabel    = "Field"
	fallbackFlatSection   = "General"
	fallbackCustomSection = "Custom Fields"
)

// Field normalizes one raw field record into a typed (label, kind, value)
// triple. Slot priority is fixed: date, number, bool, list, object, text, and
// finally an empty text value when no slot is populated. A record technically
// carrying stray values in several slots resolves to the highest-priority one.
//
// Zero numbers and false booleans are present values; only a nil pointer means
// absent. List elements, object keys and values, and text values are resolved
// through the id mapping before inclusion.
func Field(raw models.RawField, ids models.IDLabelMap) models.NormalizedField {
	label := ids.Resolve(raw.ItemID, itemFallback(raw.ItemLabel))

	kind, value := slotValue(raw, ids)
	return models.NormalizedField{Label: label, Kind: kind, Value: value}
}

func itemFallback(itemLabel string) string {
	if itemLabel == "" {
		return fallbackFieldLabel
	}
	return itemLabel
}

// slotValue applies the slot priority once, in one place. Every call site that
// needs the five-way discrimination goes through here.
func slotValue(raw models.RawField, ids models.IDLabelMap) (models.FieldKind, any) {
	switch {
	case raw.DateVal != "":
		return models.KindDate, raw.DateVal
	case raw.NumVal != nil:
		return models.KindNumber, *raw.NumVal
	case raw.BoolVal != nil:
		return models.KindBool, *raw.BoolVal
	case len(raw.ListVal) > 0:
		return models.KindList, resolveList(raw.ListVal, ids)
	case len(raw.ObjVal) > 0:
		return models.KindObject, resolveObject(raw.ObjVal, ids)
	case raw.TextVal != "":
		return models.KindText, ids.Resolve(raw.TextVal, raw.TextVal)
	default:
		return models.KindText, ""
	}
}

func resolveList(in []string, ids models.IDLabelMap) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, ids.Resolve(v, v))
	}
	return out
}

func resolveObject(in map[string]string, ids models.IDLabelMap) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[ids.Resolve(k, k)] = ids.Resolve(v, v)
	}
	return out
}

// cellField normalizes one tabular cell. Cells arrive as decoded JSON, so the
// discrimination here is by dynamic type rather than by slot: bool, number,
// list, object, then text.
func cellField(label string, value any, ids models.IDLabelMap) models.NormalizedField {
	switch v := value.(type) {
	case bool:
		return models.NormalizedField{Label: label, Kind: models.KindBool, Value: v}
	case float64:
		return models.NormalizedField{Label: label, Kind: models.KindNumber, Value: v}
	case int:
		return models.NormalizedField{Label: label, Kind: models.KindNumber, Value: float64(v)}
	case []string:
		return models.NormalizedField{Label: label, Kind: models.KindList, Value: resolveList(v, ids)}
	case []any:
		list := make([]string, 0, len(v))
		for _, e := range v {
			s := fmt.Sprint(e)
			list = append(list, ids.Resolve(s, s))
		}
		return models.NormalizedField{Label: label, Kind: models.KindList, Value: list}
	case map[string]string:
		return models.NormalizedField{Label: label, Kind: models.KindObject, Value: resolveObject(v, ids)}
	case map[string]any:
		obj := make(map[string]string, len(v))
		for k, e := range v {
			s := fmt.Sprint(e)
			obj[ids.Resolve(k, k)] = ids.Resolve(s, s)
		}
		return models.NormalizedField{Label: label, Kind: models.KindObject, Value: obj}
	case nil:
		return models.NormalizedField{Label: label, Kind: models.KindText, Value: ""}
	default:
		s := fmt.Sprint(v)
		return models.NormalizedField{Label: label, Kind: models.KindText, Value: ids.Resolve(s, s)}
	}
}
