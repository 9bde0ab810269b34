package domain

import "time"

// IndexEntry is a glossary-style pointer to a topic and where it is covered.
type IndexEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Reference   string    `json:"reference" yaml:"reference"`
	Description string    `json:"description" yaml:"description"`
	Tags        []string  `json:"tags" yaml:"tags"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type CreateIndexEntryInput struct {
	Title       string `validate:"notblank"`
	Reference   string
	Description string
	Tags        []string
}

func NewIndexEntry(id string, in CreateIndexEntryInput, now time.Time) (IndexEntry, error) {
	if err := check(in); err != nil {
		return IndexEntry{}, err
	}
	now = now.UTC()
	return IndexEntry{
		ID:          id,
		Title:       in.Title,
		Reference:   in.Reference,
		Description: in.Description,
		Tags:        cloneTags(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type IndexEntryPatch struct {
	Title       *string
	Reference   *string
	Description *string
	Tags        []string
}

func (p IndexEntryPatch) Validate() error {
	if p.Title != nil {
		return notBlank("title", *p.Title)
	}
	return nil
}

func (e IndexEntry) Apply(p IndexEntryPatch, now time.Time) IndexEntry {
	out := e
	out.Tags = cloneTags(e.Tags)
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Reference != nil {
		out.Reference = *p.Reference
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Tags != nil {
		out.Tags = cloneTags(p.Tags)
	}
	out.UpdatedAt = now.UTC()
	return out
}
