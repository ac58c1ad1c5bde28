// Package models defines the domain records shared by every layer of the
// form-export service: the loosely-typed field containers as they arrive from
// the platform API, the normalized document model handed to renderers, and the
// asset-relationship records produced by the resolver.
//
// Raw records mirror the platform's JSON payloads and keep their duck-typed
// value slots; the normalized types are the strict counterparts produced by
// the normalize package. Nothing here performs I/O.
package models

import "strings"

// FieldKind classifies a normalized field value.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindDate   FieldKind = "date"
	KindList   FieldKind = "list"
	KindObject FieldKind = "object"
)

// MatchStrategy identifies how an asset relationship was discovered for a
// form. Strategies are ordered by confidence; the resolver keeps the
// higher-confidence record when the same asset surfaces twice.
type MatchStrategy string

const (
	MatchRelationshipGraph MatchStrategy = "relationship_graph"
	MatchEmbeddedReference MatchStrategy = "embedded_reference"
	MatchFieldReference    MatchStrategy = "field_reference"
	MatchName              MatchStrategy = "name_match"
	MatchDescription       MatchStrategy = "description_match"
	MatchLocation          MatchStrategy = "location_match"
	MatchMetadata          MatchStrategy = "metadata_reference"
)

// RawField is one entry from a form's flat (pdfValues) or custom
// (customValues) container. Exactly one value slot is meaningfully populated;
// the source data does not enforce that, so consumers must go through
// normalize.Field which applies the slot priority in one place.
type RawField struct {
	SectionID    string `json:"sectionId,omitempty"`
	SectionLabel string `json:"sectionLabel,omitempty"`
	ItemID       string `json:"itemId,omitempty"`
	ItemLabel    string `json:"itemLabel,omitempty"`

	// Value slots. Pointers distinguish "absent" from zero and false, which
	// are both legitimate present values.
	DateVal string            `json:"dateVal,omitempty"`
	NumVal  *float64          `json:"numVal,omitempty"`
	BoolVal *bool             `json:"boolVal,omitempty"`
	ListVal []string          `json:"listVal,omitempty"`
	ObjVal  map[string]string `json:"objVal,omitempty"`
	TextVal string            `json:"textVal,omitempty"`
}

// TabularRow is one row of a tabular section: column key to raw cell value.
// Cell values arrive as decoded JSON (string, float64, bool, []any,
// map[string]any).
type TabularRow map[string]any

// IDLabelMap resolves opaque template identifiers to display labels. Lookup is
// total: missing identifiers fall back to the caller-supplied string.
type IDLabelMap map[string]string

// Resolve returns the label for id, or fallback when the map has no entry.
func (m IDLabelMap) Resolve(id, fallback string) string {
	if label, ok := m[id]; ok {
		return label
	}
	return fallback
}

// FormTemplate carries the per-template id mapping used for label resolution.
type FormTemplate struct {
	ID        string     `json:"id,omitempty"`
	IDMapping IDLabelMap `json:"id_mapping,omitempty"`
}

// FormRecord is a submitted form as returned by the Forms Data Source. The
// template reference appears under either a camelCase or snake_case key
// depending on the endpoint, so both are kept and IDMapping unifies them.
type FormRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	FormDate   string `json:"formDate,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	LocationID string `json:"locationId,omitempty"`
	AssetID    string `json:"assetId,omitempty"`

	PDFValues     []RawField              `json:"pdfValues,omitempty"`
	TabularValues map[string][]TabularRow `json:"tabularValues,omitempty"`
	CustomValues  []RawField              `json:"customValues,omitempty"`

	FormTemplate      *FormTemplate `json:"formTemplate,omitempty"`
	FormTemplateSnake *FormTemplate `json:"form_template,omitempty"`
}

// IDMapping returns the template id mapping regardless of which key spelling
// the API used. Returns an empty map when the form has no template, so label
// resolution always has a total map to work with.
func (f *FormRecord) IDMapping() IDLabelMap {
	if f.FormTemplate != nil && len(f.FormTemplate.IDMapping) > 0 {
		return f.FormTemplate.IDMapping
	}
	if f.FormTemplateSnake != nil && len(f.FormTemplateSnake.IDMapping) > 0 {
		return f.FormTemplateSnake.IDMapping
	}
	return IDLabelMap{}
}

// DisplayName returns the form's name or a placeholder for unnamed forms.
func (f *FormRecord) DisplayName() string {
	if f.Name == "" {
		return "Unnamed Form"
	}
	return f.Name
}

// NormalizedField is the output unit of the value normalizer. Value holds a
// kind-appropriate payload: string for text/date, float64 for number, bool for
// bool, []string for list, map[string]string for object.
type NormalizedField struct {
	Label string    `json:"label"`
	Kind  FieldKind `json:"type"`
	Value any       `json:"value"`
}

// Section is a named, ordered group of normalized fields.
type Section struct {
	Title  string            `json:"title"`
	Fields []NormalizedField `json:"fields"`
}

// FormDocument is the canonical renderer-agnostic representation of one
// completed form. Immutable once built; never mutated after handoff to a
// renderer.
type FormDocument struct {
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`
}

// AssetAttributes is the nested attribute block used by the v1 assets listing.
type AssetAttributes struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	LocationID  string `json:"locationId,omitempty"`
}

// AssetRecord is a tracked asset. The v2 details endpoint returns the flat
// fields; the v1 listing nests name/description under Attributes. Accessors
// below paper over the difference.
type AssetRecord struct {
	ID            string           `json:"id"`
	ClientAssetID string           `json:"clientAssetId,omitempty"`
	Description   string           `json:"description,omitempty"`
	LocationID    string           `json:"locationId,omitempty"`
	Barcode       string           `json:"barcode,omitempty"`
	CategoryID    string           `json:"categoryId,omitempty"`
	StatusID      string           `json:"statusId,omitempty"`
	IsActive      bool             `json:"isActive,omitempty"`
	Attributes    *AssetAttributes `json:"attributes,omitempty"`
}

// DisplayName returns the client asset id when present, then the description,
// then the v1 attribute name.
func (a *AssetRecord) DisplayName() string {
	if a.ClientAssetID != "" {
		return a.ClientAssetID
	}
	if a.Description != "" {
		return a.Description
	}
	if a.Attributes != nil && a.Attributes.Name != "" {
		return a.Attributes.Name
	}
	return "Unknown Asset"
}

// MatchName returns the name used for content matching (v1 attribute name
// first, then client asset id).
func (a *AssetRecord) MatchName() string {
	if a.Attributes != nil && a.Attributes.Name != "" {
		return a.Attributes.Name
	}
	return a.ClientAssetID
}

// MatchDescription returns the description used for content matching.
func (a *AssetRecord) MatchDescription() string {
	if a.Attributes != nil && a.Attributes.Description != "" {
		return a.Attributes.Description
	}
	return a.Description
}

// EffectiveLocationID returns the asset's location id from whichever shape
// populated it.
func (a *AssetRecord) EffectiveLocationID() string {
	if a.LocationID != "" {
		return a.LocationID
	}
	if a.Attributes != nil {
		return a.Attributes.LocationID
	}
	return ""
}

// LocationRecord is one node of a project's location tree.
type LocationRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
	Type        string `json:"type,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
}

// RelationshipEntity is one endpoint of a relationship edge.
type RelationshipEntity struct {
	Domain string `json:"domain,omitempty"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

// RelationshipEdge is one typed edge of a project's relationship graph.
type RelationshipEdge struct {
	ID       string               `json:"id"`
	Entities []RelationshipEntity `json:"entities"`
}

// AssetRelationship is one resolved link between a form and an asset,
// deduplicated by AssetID within a form's result set.
type AssetRelationship struct {
	AssetID        string        `json:"assetId"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	ClientAssetID  string        `json:"clientAssetId,omitempty"`
	LocationID     string        `json:"locationId,omitempty"`
	LocationName   string        `json:"locationName,omitempty"`
	Barcode        string        `json:"barcode,omitempty"`
	MatchStrategy  MatchStrategy `json:"matchStrategy"`
	MatchReason    string        `json:"matchReason"`
	RelationshipID string        `json:"relationshipId,omitempty"`
}

// ProgressState is the per-project batch progress record. The zero value is
// the answer for projects with no batch in flight.
type ProgressState struct {
	ProjectID  string `json:"projectId"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
}

// Hub is an organizational container of projects.
type Hub struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Region      string `json:"region"`
	Type        string `json:"type"`
}

// Project is one project within a hub.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl,omitempty"`
}

const (
	// businessPrefix marks project ids issued in their business-container
	// form. The APIs this service talks to disagree about whether the prefix
	// belongs in the path, so ids are cleaned at every boundary.
	businessPrefix = "b."

	// lineageURNPrefix wraps entity ids inside relationship edges.
	lineageURNPrefix = "urn:adsk.wipprod:dm.lineage:"
)

// CleanProjectID strips the business-container prefix so the same logical
// project is never keyed under two spellings.
func CleanProjectID(id string) string {
	return strings.TrimPrefix(id, businessPrefix)
}

// WithBusinessPrefix returns the id in its business-container spelling.
func WithBusinessPrefix(id string) string {
	if strings.HasPrefix(id, businessPrefix) {
		return id
	}
	return businessPrefix + id
}

// CleanEntityID reduces a long-form lineage URN to the bare entity id. Ids
// without the prefix pass through unchanged.
func CleanEntityID(id string) string {
	if strings.HasPrefix(id, lineageURNPrefix) {
		if i := strings.LastIndex(id, ":"); i >= 0 {
			return id[i+1:]
		}
	}
	return id
}
