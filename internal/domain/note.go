package domain

import "time"

// Note is a Cornell-style study note. Flashcards point back at it via NoteID.
type Note struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Cues      string    `json:"cues" yaml:"cues"`
	Notes     string    `json:"notes" yaml:"notes"`
	Summary   string    `json:"summary" yaml:"summary"`
	Reference string    `json:"reference" yaml:"reference"`
	Tags      []string  `json:"tags" yaml:"tags"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type CreateNoteInput struct {
	Title     string `validate:"notblank"`
	Cues      string
	Notes     string
	Summary   string
	Reference string
	Tags      []string
}

func NewNote(id string, in CreateNoteInput, now time.Time) (Note, error) {
	if err := check(in); err != nil {
		return Note{}, err
	}
	now = now.UTC()
	return Note{
		ID:        id,
		Title:     in.Title,
		Cues:      in.Cues,
		Notes:     in.Notes,
		Summary:   in.Summary,
		Reference: in.Reference,
		Tags:      cloneTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NotePatch follows the same rules as FlashcardPatch.
type NotePatch struct {
	Title     *string
	Cues      *string
	Notes     *string
	Summary   *string
	Reference *string
	Tags      []string
}

func (p NotePatch) Validate() error {
	if p.Title != nil {
		return notBlank("title", *p.Title)
	}
	return nil
}

// Apply merges p over n and stamps UpdatedAt.
func (n Note) Apply(p NotePatch, now time.Time) Note {
	out := n
	out.Tags = cloneTags(n.Tags)
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Cues != nil {
		out.Cues = *p.Cues
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Summary != nil {
		out.Summary = *p.Summary
	}
	if p.Reference != nil {
		out.Reference = *p.Reference
	}
	if p.Tags != nil {
		out.Tags = cloneTags(p.Tags)
	}
	out.UpdatedAt = now.UTC()
	return out
}
