package relate

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedocs/formexport/pkg/models"
)

// stubSource serves canned asset and location data for strategy tests.
type stubSource struct {
	assets     []models.AssetRecord
	details    map[string]*models.AssetRecord
	listErr    error
	detailsErr error
}

func (s *stubSource) ListForms(ctx context.Context, projectID string) ([]models.FormRecord, error) {
	return nil, nil
}

func (s *stubSource) GetForm(ctx context.Context, projectID, formID string) (*models.FormRecord, error) {
	return nil, nil
}

func (s *stubSource) ListAssets(ctx context.Context, projectID string) ([]models.AssetRecord, error) {
	return s.assets, s.listErr
}

func (s *stubSource) GetAssetDetails(ctx context.Context, projectID, assetID string) (*models.AssetRecord, error) {
	if s.detailsErr != nil {
		return nil, s.detailsErr
	}
	return s.details[assetID], nil
}

func (s *stubSource) ListLocations(ctx context.Context, projectID string) ([]models.LocationRecord, error) {
	return nil, nil
}

func (s *stubSource) SearchRelationships(ctx context.Context, projectID string) ([]models.RelationshipEdge, error) {
	return nil, nil
}

func TestGraphStrategy(t *testing.T) {
	graph := []models.RelationshipEdge{
		{ID: "rel-1", Entities: []models.RelationshipEntity{
			{Type: "form", ID: "F1"},
			{Type: "asset", ID: "A9"},
		}},
	}
	src := &stubSource{details: map[string]*models.AssetRecord{
		"A9": {ID: "A9", ClientAssetID: "PUMP-09", LocationID: "loc-1"},
	}}
	scope := &Scope{
		ProjectID: "proj-1",
		Graph:     graph,
		Locations: map[string]string{"loc-1": "Basement"},
		Source:    src,
	}
	r := NewResolver(zerolog.Nop())

	t.Run("edge joins form to asset", func(t *testing.T) {
		rels := r.ResolveAssets(context.Background(), &models.FormRecord{ID: "F1"}, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A9", rels[0].AssetID)
		assert.Equal(t, models.MatchRelationshipGraph, rels[0].MatchStrategy)
		assert.Equal(t, "PUMP-09", rels[0].Name)
		assert.Equal(t, "Basement", rels[0].LocationName)
		assert.Equal(t, "rel-1", rels[0].RelationshipID)
	})

	t.Run("unrelated form yields nothing from graph", func(t *testing.T) {
		rels := r.ResolveAssets(context.Background(), &models.FormRecord{ID: "F2"}, scope)
		assert.Empty(t, rels)
	})

	t.Run("urn-wrapped entity ids match bare form id", func(t *testing.T) {
		urnScope := &Scope{
			ProjectID: "proj-1",
			Graph: []models.RelationshipEdge{
				{ID: "rel-2", Entities: []models.RelationshipEntity{
					{Type: "form", ID: "urn:adsk.wipprod:dm.lineage:F1"},
					{Type: "asset", ID: "urn:adsk.wipprod:dm.lineage:A9"},
				}},
			},
			Source: src,
		}
		rels := r.ResolveAssets(context.Background(), &models.FormRecord{ID: "F1"}, urnScope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A9", rels[0].AssetID)
	})

	t.Run("asset detail failure keeps the bare link", func(t *testing.T) {
		failScope := &Scope{
			ProjectID: "proj-1",
			Graph:     graph,
			Source:    &stubSource{detailsErr: errors.New("upstream down")},
		}
		rels := r.ResolveAssets(context.Background(), &models.FormRecord{ID: "F1"}, failScope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A9", rels[0].AssetID)
		assert.Equal(t, "A9", rels[0].Name)
	})
}

func TestEmbeddedStrategy(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	scope := &Scope{ProjectID: "proj-1", Source: &stubSource{}}

	t.Run("bracketed reference extracted from text", func(t *testing.T) {
		form := &models.FormRecord{
			ID: "F1",
			PDFValues: []models.RawField{
				{ItemLabel: "Notes", TextVal: "Generator A [11112222-3333] serviced today"},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "11112222-3333", rels[0].AssetID)
		assert.Equal(t, "Generator A", rels[0].Name)
		assert.Equal(t, models.MatchEmbeddedReference, rels[0].MatchStrategy)
		assert.Contains(t, rels[0].MatchReason, `"Notes"`)
	})

	t.Run("short numeric id matches", func(t *testing.T) {
		form := &models.FormRecord{
			ID: "F1",
			PDFValues: []models.RawField{
				{ItemLabel: "Notes", TextVal: "Generator [1484849] serviced"},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "1484849", rels[0].AssetID)
		assert.Equal(t, "Generator", rels[0].Name)
		assert.Equal(t, models.MatchEmbeddedReference, rels[0].MatchStrategy)
	})

	t.Run("bare bracketed id names itself", func(t *testing.T) {
		form := &models.FormRecord{
			ID: "F1",
			PDFValues: []models.RawField{
				{ItemLabel: "Notes", TextVal: "[A-17] inspected"},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A-17", rels[0].AssetID)
		assert.Equal(t, "A-17", rels[0].Name)
	})

	t.Run("keyword label flags field reference", func(t *testing.T) {
		form := &models.FormRecord{
			ID: "F1",
			CustomValues: []models.RawField{
				{ItemLabel: "Equipment Used", TextVal: "Tower Crane 2"},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, models.MatchFieldReference, rels[0].MatchStrategy)
		assert.Equal(t, "Tower Crane 2", rels[0].Name)
	})

	t.Run("plain text yields nothing", func(t *testing.T) {
		form := &models.FormRecord{
			ID: "F1",
			PDFValues: []models.RawField{
				{ItemLabel: "Notes", TextVal: "all clear today"},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		assert.Empty(t, rels)
	})
}

func TestContentStrategy(t *testing.T) {
	assets := []models.AssetRecord{
		{ID: "A1", Attributes: &models.AssetAttributes{Name: "Excavator"}},
		{ID: "A2", Attributes: &models.AssetAttributes{Description: "diesel generator"}},
		{ID: "A3", LocationID: "loc-7", ClientAssetID: "HVAC-3"},
		{ID: "A4", Attributes: &models.AssetAttributes{Name: "Crane"}},
	}
	r := NewResolver(zerolog.Nop())

	t.Run("name and description substring matches", func(t *testing.T) {
		scope := &Scope{ProjectID: "proj-1", Source: &stubSource{assets: assets}}
		form := &models.FormRecord{
			ID: "F1",
			PDFValues: []models.RawField{
				{ItemLabel: "Notes", TextVal: "Moved the excavator next to the diesel generator"},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 2)
		assert.Equal(t, models.MatchName, rels[0].MatchStrategy)
		assert.Equal(t, "A1", rels[0].AssetID)
		assert.Equal(t, models.MatchDescription, rels[1].MatchStrategy)
		assert.Equal(t, "A2", rels[1].AssetID)
	})

	t.Run("tabular cells count as content", func(t *testing.T) {
		scope := &Scope{ProjectID: "proj-1", Source: &stubSource{assets: assets}}
		form := &models.FormRecord{
			ID: "F1",
			TabularValues: map[string][]models.TabularRow{
				"Equipment Log": {
					{"notes": "used the excavator all day", "hours": float64(8)},
				},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A1", rels[0].AssetID)
		assert.Equal(t, models.MatchName, rels[0].MatchStrategy)
	})

	t.Run("tabular section name counts as content", func(t *testing.T) {
		scope := &Scope{ProjectID: "proj-1", Source: &stubSource{assets: assets}}
		form := &models.FormRecord{
			ID: "F1",
			TabularValues: map[string][]models.TabularRow{
				"Crane Checks": {{"result": "pass"}},
			},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A4", rels[0].AssetID)
	})

	t.Run("shared location qualifies", func(t *testing.T) {
		scope := &Scope{
			ProjectID: "proj-1",
			Locations: map[string]string{"loc-7": "Roof"},
			Source:    &stubSource{assets: assets},
		}
		form := &models.FormRecord{ID: "F1", LocationID: "loc-7"}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "A3", rels[0].AssetID)
		assert.Equal(t, models.MatchLocation, rels[0].MatchStrategy)
		assert.Equal(t, "Roof", rels[0].LocationName)
	})

	t.Run("matches capped at five", func(t *testing.T) {
		var many []models.AssetRecord
		for _, id := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7"} {
			many = append(many, models.AssetRecord{
				ID:         id,
				Attributes: &models.AssetAttributes{Name: "pump"},
			})
		}
		scope := &Scope{ProjectID: "proj-1", Source: &stubSource{assets: many}}
		form := &models.FormRecord{
			ID:        "F1",
			PDFValues: []models.RawField{{ItemLabel: "Notes", TextVal: "checked the pump"}},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		assert.Len(t, rels, 5)
	})

	t.Run("list failure degrades to empty", func(t *testing.T) {
		scope := &Scope{
			ProjectID: "proj-1",
			Source:    &stubSource{listErr: errors.New("upstream down")},
		}
		form := &models.FormRecord{
			ID:        "F1",
			PDFValues: []models.RawField{{ItemLabel: "Notes", TextVal: "checked the pump"}},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		assert.Empty(t, rels)
	})
}

func TestMetadataStrategy(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	t.Run("runs even after a graph hit", func(t *testing.T) {
		scope := &Scope{
			ProjectID: "proj-1",
			Graph: []models.RelationshipEdge{
				{ID: "rel-1", Entities: []models.RelationshipEntity{
					{Type: "form", ID: "F1"},
					{Type: "asset", ID: "A9"},
				}},
			},
			Source: &stubSource{details: map[string]*models.AssetRecord{
				"A5": {ID: "A5", ClientAssetID: "LIFT-5"},
			}},
		}
		form := &models.FormRecord{ID: "F1", AssetID: "A5"}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 2)
		assert.Equal(t, models.MatchRelationshipGraph, rels[0].MatchStrategy)
		assert.Equal(t, models.MatchMetadata, rels[1].MatchStrategy)
		assert.Equal(t, "LIFT-5", rels[1].Name)
	})

	t.Run("metadata hit does not unlock content matching", func(t *testing.T) {
		// The metadata strategy is ordered last, so its result cannot
		// retroactively suppress anything; but content matching must still
		// run when only metadata would match.
		scope := &Scope{
			ProjectID: "proj-1",
			Source: &stubSource{
				assets: []models.AssetRecord{
					{ID: "A1", Attributes: &models.AssetAttributes{Name: "pump"}},
				},
			},
		}
		form := &models.FormRecord{
			ID:        "F1",
			AssetID:   "A5",
			PDFValues: []models.RawField{{ItemLabel: "Notes", TextVal: "checked the pump"}},
		}
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 2)
		assert.Equal(t, models.MatchName, rels[0].MatchStrategy)
		assert.Equal(t, models.MatchMetadata, rels[1].MatchStrategy)
	})
}

func TestDeduplication(t *testing.T) {
	t.Run("same asset from two strategies keeps higher priority entry", func(t *testing.T) {
		scope := &Scope{
			ProjectID: "proj-1",
			Graph: []models.RelationshipEdge{
				{ID: "rel-1", Entities: []models.RelationshipEntity{
					{Type: "form", ID: "F1"},
					{Type: "asset", ID: "A1"},
				}},
			},
			Source: &stubSource{},
		}
		form := &models.FormRecord{ID: "F1", AssetID: "A1"}
		r := NewResolver(zerolog.Nop())
		rels := r.ResolveAssets(context.Background(), form, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, models.MatchRelationshipGraph, rels[0].MatchStrategy)
		assert.Contains(t, rels[0].MatchReason, "rel-1")
	})

	t.Run("duplicate asset endpoints collapse", func(t *testing.T) {
		scope := &Scope{
			ProjectID: "proj-1",
			Graph: []models.RelationshipEdge{
				{ID: "rel-1", Entities: []models.RelationshipEntity{
					{Type: "form", ID: "F1"},
					{Type: "asset", ID: "A1"},
				}},
				{ID: "rel-2", Entities: []models.RelationshipEntity{
					{Type: "form", ID: "F1"},
					{Type: "asset", ID: "A1"},
				}},
			},
			Source: &stubSource{},
		}
		r := NewResolver(zerolog.Nop())
		rels := r.ResolveAssets(context.Background(), &models.FormRecord{ID: "F1"}, scope)
		require.Len(t, rels, 1)
		assert.Equal(t, "rel-1", rels[0].RelationshipID)
	})
}

func TestStrategySkipping(t *testing.T) {
	// A graph hit must suppress the embedded and content passes.
	scope := &Scope{
		ProjectID: "proj-1",
		Graph: []models.RelationshipEdge{
			{ID: "rel-1", Entities: []models.RelationshipEntity{
				{Type: "form", ID: "F1"},
				{Type: "asset", ID: "A1"},
			}},
		},
		Source: &stubSource{assets: []models.AssetRecord{
			{ID: "A2", Attributes: &models.AssetAttributes{Name: "pump"}},
		}},
	}
	form := &models.FormRecord{
		ID:        "F1",
		PDFValues: []models.RawField{{ItemLabel: "Notes", TextVal: "checked the pump"}},
	}
	r := NewResolver(zerolog.Nop())
	rels := r.ResolveAssets(context.Background(), form, scope)
	require.Len(t, rels, 1)
	assert.Equal(t, "A1", rels[0].AssetID)
}
