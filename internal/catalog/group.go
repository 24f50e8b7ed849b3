package catalog

import "session-scribe/internal/domain"

// Group combines per-family catalogs into one catalog source.
type Group struct {
	catalogs []*Catalog
}

// NewGroup builds a group over the given catalogs.
func NewGroup(catalogs ...*Catalog) *Group {
	return &Group{catalogs: catalogs}
}

// ListKnownArtifacts concatenates entries from every member catalog.
func (g *Group) ListKnownArtifacts() ([]domain.CatalogEntry, error) {
	var entries []domain.CatalogEntry
	for _, c := range g.catalogs {
		part, err := c.ListKnownArtifacts()
		if err != nil {
			return nil, err
		}
		entries = append(entries, part...)
	}
	return entries, nil
}

// Dirs returns the model directories scanned by the member catalogs.
func (g *Group) Dirs() []string {
	dirs := make([]string, 0, len(g.catalogs))
	for _, c := range g.catalogs {
		dirs = append(dirs, c.Dir())
	}
	return dirs
}
