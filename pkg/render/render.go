// Package render turns a normalized form document into deliverable bytes:
// an HTML page first, then a printed PDF via a headless browser.
package render

import (
	"context"

	"github.com/sitedocs/formexport/pkg/models"
)

// LogoPosition places the logo on the page.
type LogoPosition string

const (
	LogoTopLeft     LogoPosition = "top-left"
	LogoTopRight    LogoPosition = "top-right"
	LogoBottomLeft  LogoPosition = "bottom-left"
	LogoBottomRight LogoPosition = "bottom-right"
)

// LogoSize scales the logo.
type LogoSize string

const (
	LogoSmall  LogoSize = "small"
	LogoMedium LogoSize = "medium"
	LogoLarge  LogoSize = "large"
)

// Orientation selects the page orientation.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// MarginSize selects the page margin preset.
type MarginSize string

const (
	MarginSmall  MarginSize = "small"
	MarginMedium MarginSize = "medium"
	MarginLarge  MarginSize = "large"
)

// StyleOptions is the document styling configuration. The zero value renders
// a plain portrait document with medium margins and no logo.
type StyleOptions struct {
	LogoData           []byte
	LogoMIME           string
	LogoPosition       LogoPosition
	LogoSize           LogoSize
	Orientation        Orientation
	Margin             MarginSize
	IncludePageNumbers bool
	IncludeTimestamp   bool
}

// Renderer produces document bytes from normalized forms. RenderBatch
// merges every item into a single document with one form per page.
type Renderer interface {
	Render(ctx context.Context, doc *models.FormDocument, assets []models.AssetRelationship, opts StyleOptions) ([]byte, error)
	RenderBatch(ctx context.Context, items []Item, opts StyleOptions) ([]byte, error)
}
