package render

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/sitedocs/formexport/pkg/models"
)

// PDFRenderer prints documents through a headless browser. One browser
// allocation per Render call keeps page state isolated between exports.
type PDFRenderer struct {
	// ExecPath overrides the browser binary, empty uses chromedp's default
	// discovery.
	ExecPath string
}

var _ Renderer = (*PDFRenderer)(nil)

// Render builds the HTML page and prints it to PDF bytes.
func (r *PDFRenderer) Render(ctx context.Context, doc *models.FormDocument, assets []models.AssetRelationship, opts StyleOptions) ([]byte, error) {
	return r.RenderBatch(ctx, []Item{{Doc: doc, Assets: assets}}, opts)
}

// RenderBatch prints all items into one PDF, each form starting a new page.
func (r *PDFRenderer) RenderBatch(ctx context.Context, items []Item, opts StyleOptions) ([]byte, error) {
	html, err := BuildBatchHTML(items, opts)
	if err != nil {
		return nil, err
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if r.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := printParams(opts)
			var err error
			pdf, _, err = params.Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to print document: %w", err)
	}
	return pdf, nil
}

func printParams(opts StyleOptions) *page.PrintToPDFParams {
	margin := marginInches(opts.Margin)
	params := page.PrintToPDF().
		WithLandscape(opts.Orientation == Landscape).
		WithPrintBackground(true).
		WithMarginTop(margin).
		WithMarginBottom(margin).
		WithMarginLeft(margin).
		WithMarginRight(margin)

	if opts.IncludePageNumbers {
		params = params.
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate(`<span></span>`).
			WithFooterTemplate(`<div style="font-size:8px;width:100%;text-align:center;"><span class="pageNumber"></span> / <span class="totalPages"></span></div>`)
	}
	return params
}

func marginInches(size MarginSize) float64 {
	switch size {
	case MarginSmall:
		return 0.25
	case MarginLarge:
		return 1.0
	default:
		return 0.5
	}
}
