package inmemory

import "github.com/loambase/loam/pkg/memory"

// Clone helpers isolate callers from the store's internal pointers. Every
// read path returns copies so a caller mutating a returned item cannot
// corrupt store state.

func cloneEpisode(e *memory.Episode) *memory.Episode {
	out := *e
	out.Embedding = append([]float32(nil), e.Embedding...)
	out.Metadata = e.Metadata.Clone()
	if e.SessionID != nil {
		v := *e.SessionID
		out.SessionID = &v
	}
	if e.LastError != nil {
		v := *e.LastError
		out.LastError = &v
	}
	if e.LastReferencedAt != nil {
		v := *e.LastReferencedAt
		out.LastReferencedAt = &v
	}
	return &out
}

func cloneFact(f *memory.Fact) *memory.Fact {
	out := *f
	out.Embedding = append([]float32(nil), f.Embedding...)
	out.Tags = append([]string(nil), f.Tags...)
	out.Metadata = f.Metadata.Clone()
	if f.SourceEpisodeID != nil {
		v := *f.SourceEpisodeID
		out.SourceEpisodeID = &v
	}
	if f.SupersedesID != nil {
		v := *f.SupersedesID
		out.SupersedesID = &v
	}
	if f.EntityID != nil {
		v := *f.EntityID
		out.EntityID = &v
	}
	if f.LastReferencedAt != nil {
		v := *f.LastReferencedAt
		out.LastReferencedAt = &v
	}
	if f.LastConfirmedAt != nil {
		v := *f.LastConfirmedAt
		out.LastConfirmedAt = &v
	}
	return &out
}

func cloneRule(r *memory.Rule) *memory.Rule {
	out := *r
	out.Embedding = append([]float32(nil), r.Embedding...)
	out.Tags = append([]string(nil), r.Tags...)
	out.Metadata = r.Metadata.Clone()
	if r.SourceEpisodeID != nil {
		v := *r.SourceEpisodeID
		out.SourceEpisodeID = &v
	}
	if r.LastAppliedAt != nil {
		v := *r.LastAppliedAt
		out.LastAppliedAt = &v
	}
	if r.LastEvaluatedAt != nil {
		v := *r.LastEvaluatedAt
		out.LastEvaluatedAt = &v
	}
	if r.LastConfirmedAt != nil {
		v := *r.LastConfirmedAt
		out.LastConfirmedAt = &v
	}
	if r.LastReferencedAt != nil {
		v := *r.LastReferencedAt
		out.LastReferencedAt = &v
	}
	return &out
}

func cloneEntity(e *memory.Entity) *memory.Entity {
	out := *e
	out.Aliases = append([]string(nil), e.Aliases...)
	out.Metadata = e.Metadata.Clone()
	return &out
}
