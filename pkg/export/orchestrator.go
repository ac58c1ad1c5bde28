package export

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sitedocs/formexport/pkg/acc"
	"github.com/sitedocs/formexport/pkg/cache"
	"github.com/sitedocs/formexport/pkg/models"
	"github.com/sitedocs/formexport/pkg/normalize"
	"github.com/sitedocs/formexport/pkg/relate"
)

// progressChunk is how many forms are processed between progress updates.
const progressChunk = 5

// Cache is the slice of the relationship cache the orchestrator needs.
// *cache.Store implements it.
type Cache interface {
	Get(ctx context.Context, table cache.Table, projectID string, out any) (bool, error)
	Put(ctx context.Context, table cache.Table, projectID string, payload any) error
	CheckAndEvict(ctx context.Context) error
}

// Result is one exported form: its normalized document plus the assets
// resolved for it. Every requested form appears in the batch output, with an
// empty asset list standing in for any lookup that degraded.
type Result struct {
	Form     models.FormRecord          `json:"form"`
	Document *models.FormDocument       `json:"document"`
	Assets   []models.AssetRelationship `json:"assets"`
}

// Orchestrator runs batch exports for a project: forms, locations, and the
// relationship graph are each resolved cache-first, then every form is
// normalized and its assets resolved in list order.
type Orchestrator struct {
	source   acc.Source
	cache    Cache
	resolver *relate.Resolver
	tracker  *Tracker
	log      zerolog.Logger
}

// NewOrchestrator wires an orchestrator. cache may be nil, which disables
// caching and fetches live on every call.
func NewOrchestrator(source acc.Source, c Cache, resolver *relate.Resolver, tracker *Tracker, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		source:   source,
		cache:    c,
		resolver: resolver,
		tracker:  tracker,
		log:      log.With().Str("component", "export").Logger(),
	}
}

// ExportProject processes every form in the project, in the order the forms
// API returns them. Progress is reported through the tracker on the first
// form, after every fifth form, and at completion with exactly 100.
func (o *Orchestrator) ExportProject(ctx context.Context, projectID string) ([]Result, error) {
	clean := models.CleanProjectID(projectID)

	o.setProgress(clean, 0, "Starting export...", 0, 0)

	if o.cache != nil {
		if err := o.cache.CheckAndEvict(ctx); err != nil {
			o.log.Warn().Err(err).Msg("cache eviction failed, continuing without it")
		}
	}

	forms, err := o.loadForms(ctx, clean)
	if err != nil {
		o.setProgress(clean, 0, "Export failed: could not load forms", 0, 0)
		return nil, fmt.Errorf("failed to load forms for project %s: %w", clean, err)
	}

	scope := &relate.Scope{
		ProjectID: clean,
		Graph:     o.loadGraph(ctx, clean),
		Locations: o.loadLocations(ctx, clean),
		Source:    o.source,
	}

	total := len(forms)
	results := make([]Result, 0, total)
	for i := range forms {
		if err := ctx.Err(); err != nil {
			o.setProgress(clean, percent(i, total), "Export cancelled", i, total)
			return results, err
		}
		form := forms[i]

		if i%progressChunk == 0 {
			msg := fmt.Sprintf("Processing form %d of %d: %s", i+1, total, form.DisplayName())
			o.setProgress(clean, percent(i, total), msg, i, total)
		}

		results = append(results, Result{
			Form:     form,
			Document: normalize.BuildFormDocument(&form),
			Assets:   o.resolver.ResolveAssets(ctx, &form, scope),
		})
	}

	o.setProgress(clean, 100, fmt.Sprintf("Export complete: %d forms processed", total), total, total)
	return results, nil
}

// ExportForm builds the document and asset links for one form.
func (o *Orchestrator) ExportForm(ctx context.Context, projectID, formID string) (*Result, error) {
	clean := models.CleanProjectID(projectID)

	form, err := o.source.GetForm(ctx, clean, formID)
	if err != nil {
		return nil, err
	}

	scope := &relate.Scope{
		ProjectID: clean,
		Graph:     o.loadGraph(ctx, clean),
		Locations: o.loadLocations(ctx, clean),
		Source:    o.source,
	}

	return &Result{
		Form:     *form,
		Document: normalize.BuildFormDocument(form),
		Assets:   o.resolver.ResolveAssets(ctx, form, scope),
	}, nil
}

// Progress returns the current batch state for a project.
func (o *Orchestrator) Progress(projectID string) models.ProgressState {
	return o.tracker.Get(projectID)
}

func (o *Orchestrator) setProgress(projectID string, pct int, msg string, current, total int) {
	o.tracker.Set(models.ProgressState{
		ProjectID:  projectID,
		Percentage: pct,
		Message:    msg,
		Current:    current,
		Total:      total,
	})
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}

// loadForms resolves the project's form list cache-first. A cache failure is
// a miss; only a live-fetch failure is fatal to the batch.
func (o *Orchestrator) loadForms(ctx context.Context, projectID string) ([]models.FormRecord, error) {
	var forms []models.FormRecord
	if o.cacheGet(ctx, cache.TableForms, projectID, &forms) {
		return forms, nil
	}
	forms, err := o.source.ListForms(ctx, projectID)
	if err != nil {
		return nil, err
	}
	o.cachePut(ctx, cache.TableForms, projectID, forms)
	return forms, nil
}

// loadLocations resolves the project's location lookup cache-first. Degrades
// to an empty map on failure.
func (o *Orchestrator) loadLocations(ctx context.Context, projectID string) map[string]string {
	var lookup map[string]string
	if o.cacheGet(ctx, cache.TableLocations, projectID, &lookup) {
		return lookup
	}
	records, err := o.source.ListLocations(ctx, projectID)
	if err != nil {
		o.log.Warn().Err(err).Str("project_id", projectID).Msg("location lookup unavailable")
		return map[string]string{}
	}
	lookup = make(map[string]string, len(records))
	for _, rec := range records {
		lookup[rec.ID] = rec.Name
	}
	o.cachePut(ctx, cache.TableLocations, projectID, lookup)
	return lookup
}

// loadGraph resolves the project's relationship graph cache-first, once per
// batch. Degrades to nil, which disables the graph strategy for this batch.
func (o *Orchestrator) loadGraph(ctx context.Context, projectID string) []models.RelationshipEdge {
	var graph []models.RelationshipEdge
	if o.cacheGet(ctx, cache.TableRelationships, projectID, &graph) {
		return graph
	}
	graph, err := o.source.SearchRelationships(ctx, projectID)
	if err != nil {
		o.log.Warn().Err(err).Str("project_id", projectID).Msg("relationship graph unavailable")
		return nil
	}
	o.cachePut(ctx, cache.TableRelationships, projectID, graph)
	return graph
}

func (o *Orchestrator) cacheGet(ctx context.Context, table cache.Table, projectID string, out any) bool {
	if o.cache == nil {
		return false
	}
	found, err := o.cache.Get(ctx, table, projectID, out)
	if err != nil {
		o.log.Warn().Err(err).Str("table", string(table)).Msg("cache read failed, fetching live")
		return false
	}
	return found
}

func (o *Orchestrator) cachePut(ctx context.Context, table cache.Table, projectID string, payload any) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Put(ctx, table, projectID, payload); err != nil {
		o.log.Warn().Err(err).Str("table", string(table)).Msg("cache write failed")
	}
}
