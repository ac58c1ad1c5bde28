package relate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sitedocs/formexport/pkg/models"
)

// maxContentMatches caps the content-similarity fallback so a chatty form
// cannot sweep in half the asset register.
const maxContentMatches = 5

// referenceKeywords mark field labels that conventionally hold an asset
// reference even without a bracketed id.
var referenceKeywords = []string{"asset", "equipment", "component", "reference"}

// embeddedRefPattern matches the "Name [id]" convention used when an asset is
// pasted into a free-text field. Ids have no fixed shape; anything bracketed
// counts and the name prefix may be absent.
var embeddedRefPattern = regexp.MustCompile(`([^\[\]]*?)\s*\[([^\[\]]+)\]`)

// graphStrategy walks the project relationship graph: edges joining this form
// to asset entities are the canonical links.
type graphStrategy struct{}

func (graphStrategy) Name() models.MatchStrategy { return models.MatchRelationshipGraph }

func (graphStrategy) Attempt(ctx context.Context, form *models.FormRecord, scope *Scope) ([]models.AssetRelationship, error) {
	if scope.Graph == nil {
		return nil, nil
	}

	var results []models.AssetRelationship
	for _, edge := range scope.Graph {
		if !edgeTouchesForm(edge, form.ID) {
			continue
		}
		for _, ent := range edge.Entities {
			if !strings.EqualFold(ent.Type, "asset") {
				continue
			}
			assetID := models.CleanEntityID(ent.ID)
			rel := models.AssetRelationship{
				AssetID:        assetID,
				Name:           assetID,
				MatchStrategy:  models.MatchRelationshipGraph,
				MatchReason:    fmt.Sprintf("linked via relationship %s", edge.ID),
				RelationshipID: edge.ID,
			}
			if asset, err := scope.Source.GetAssetDetails(ctx, scope.ProjectID, assetID); err == nil && asset != nil {
				fillAssetDetails(&rel, asset, scope)
			}
			results = append(results, rel)
		}
	}
	return results, nil
}

func edgeTouchesForm(edge models.RelationshipEdge, formID string) bool {
	for _, ent := range edge.Entities {
		if strings.EqualFold(ent.Type, "form") && models.CleanEntityID(ent.ID) == formID {
			return true
		}
	}
	return false
}

// embeddedStrategy scans field text for bracketed "name [id]" tokens, and
// flags keyword-labeled fields as weaker reference candidates.
type embeddedStrategy struct{}

func (embeddedStrategy) Name() models.MatchStrategy { return models.MatchEmbeddedReference }

func (embeddedStrategy) Attempt(ctx context.Context, form *models.FormRecord, scope *Scope) ([]models.AssetRelationship, error) {
	var results []models.AssetRelationship
	for _, field := range formText(form) {
		text, ok := field.Value.(string)
		if !ok || text == "" {
			continue
		}

		for _, m := range embeddedRefPattern.FindAllStringSubmatch(text, -1) {
			id := strings.TrimSpace(m[2])
			if id == "" {
				continue
			}
			name := strings.TrimSpace(m[1])
			if name == "" {
				name = id
			}
			results = append(results, models.AssetRelationship{
				AssetID:       id,
				Name:          name,
				MatchStrategy: models.MatchEmbeddedReference,
				MatchReason:   fmt.Sprintf("referenced in field %q", field.Label),
			})
		}

		if labelHasReferenceKeyword(field.Label) {
			results = append(results, models.AssetRelationship{
				AssetID:       text,
				Name:          text,
				MatchStrategy: models.MatchFieldReference,
				MatchReason:   fmt.Sprintf("value of reference field %q", field.Label),
			})
		}
	}
	return results, nil
}

func labelHasReferenceKeyword(label string) bool {
	lower := strings.ToLower(label)
	for _, kw := range referenceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// contentStrategy is the last-resort fuzzy pass: assets whose name or
// description appears in the form's text, or that share the form's declared
// location.
type contentStrategy struct{}

func (contentStrategy) Name() models.MatchStrategy { return models.MatchName }

func (contentStrategy) Attempt(ctx context.Context, form *models.FormRecord, scope *Scope) ([]models.AssetRelationship, error) {
	assets, err := scope.Source.ListAssets(ctx, scope.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets for content match: %w", err)
	}

	blob := searchBlob(form)

	var results []models.AssetRelationship
	for i := range assets {
		if len(results) >= maxContentMatches {
			break
		}
		asset := &assets[i]

		if name := asset.MatchName(); name != "" && strings.Contains(blob, strings.ToLower(name)) {
			results = append(results, contentMatch(asset, scope, models.MatchName,
				fmt.Sprintf("asset name %q found in form content", name)))
			continue
		}
		if desc := asset.MatchDescription(); desc != "" && strings.Contains(blob, strings.ToLower(desc)) {
			results = append(results, contentMatch(asset, scope, models.MatchDescription,
				fmt.Sprintf("asset description %q found in form content", desc)))
			continue
		}
		if form.LocationID != "" && asset.EffectiveLocationID() == form.LocationID {
			results = append(results, contentMatch(asset, scope, models.MatchLocation,
				"asset shares the form's location"))
		}
	}
	return results, nil
}

func contentMatch(asset *models.AssetRecord, scope *Scope, strategy models.MatchStrategy, reason string) models.AssetRelationship {
	rel := models.AssetRelationship{
		AssetID:       asset.ID,
		Name:          asset.ID,
		MatchStrategy: strategy,
		MatchReason:   reason,
	}
	fillAssetDetails(&rel, asset, scope)
	return rel
}

// metadataStrategy emits the form's own assetId field. Always runs, even when
// a higher-confidence strategy already matched.
type metadataStrategy struct{}

func (metadataStrategy) Name() models.MatchStrategy { return models.MatchMetadata }

func (metadataStrategy) Attempt(ctx context.Context, form *models.FormRecord, scope *Scope) ([]models.AssetRelationship, error) {
	if form.AssetID == "" {
		return nil, nil
	}
	assetID := models.CleanEntityID(form.AssetID)
	rel := models.AssetRelationship{
		AssetID:       assetID,
		Name:          assetID,
		MatchStrategy: models.MatchMetadata,
		MatchReason:   "declared in form metadata",
	}
	if asset, err := scope.Source.GetAssetDetails(ctx, scope.ProjectID, assetID); err == nil && asset != nil {
		fillAssetDetails(&rel, asset, scope)
	}
	return []models.AssetRelationship{rel}, nil
}

// fillAssetDetails copies descriptive fields from a fetched asset onto a
// relationship and resolves its location name.
func fillAssetDetails(rel *models.AssetRelationship, asset *models.AssetRecord, scope *Scope) {
	if name := asset.DisplayName(); name != "" {
		rel.Name = name
	}
	rel.Description = asset.MatchDescription()
	rel.ClientAssetID = asset.ClientAssetID
	rel.Barcode = asset.Barcode
	rel.LocationID = asset.EffectiveLocationID()
	rel.LocationName = scope.LocationName(rel.LocationID)
}
