package acc

import (
	"context"
	"fmt"

	"github.com/sitedocs/formexport/pkg/models"
)

// The hub/project endpoints wrap everything in a JSON:API envelope with
// nested attributes; flatten into the service's own shapes at the boundary.

type hubResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name      string `json:"name"`
		Region    string `json:"region"`
		Extension struct {
			Type string `json:"type"`
		} `json:"extension"`
	} `json:"attributes"`
}

type projectResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
}

// ListHubs returns the account hubs visible to the credential.
func (c *Client) ListHubs(ctx context.Context) ([]models.Hub, error) {
	var payload struct {
		Data []hubResource `json:"data"`
	}
	if err := c.get(ctx, "/project/v1/hubs", nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list hubs: %w", err)
	}
	hubs := make([]models.Hub, 0, len(payload.Data))
	for _, h := range payload.Data {
		hubs = append(hubs, models.Hub{
			ID:     h.ID,
			Name:   h.Attributes.Name,
			Region: h.Attributes.Region,
			Type:   h.Attributes.Extension.Type,
		})
	}
	return hubs, nil
}

// ListProjects returns the projects under a hub.
func (c *Client) ListProjects(ctx context.Context, hubID string) ([]models.Project, error) {
	var payload struct {
		Data []projectResource `json:"data"`
	}
	path := fmt.Sprintf("/project/v1/hubs/%s/projects", hubID)
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projects := make([]models.Project, 0, len(payload.Data))
	for _, p := range payload.Data {
		projects = append(projects, models.Project{ID: p.ID, Name: p.Attributes.Name})
	}
	return projects, nil
}

// GetProject fetches a single project under a hub.
func (c *Client) GetProject(ctx context.Context, hubID, projectID string) (*models.Project, error) {
	var payload struct {
		Data projectResource `json:"data"`
	}
	path := fmt.Sprintf("/project/v1/hubs/%s/projects/%s", hubID, models.WithBusinessPrefix(projectID))
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &models.Project{ID: payload.Data.ID, Name: payload.Data.Attributes.Name}, nil
}
