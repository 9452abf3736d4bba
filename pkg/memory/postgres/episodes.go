package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
)

// episodeCols is the standard SELECT column list for scanEpisode.
// Embeddings are write-once artifacts and deliberately never read back.
const episodeCols = `id, scope, session_id, content, importance, reference_count,
	consolidated, consolidation_status, retry_count, last_error,
	created_at, last_referenced_at, expires_at, metadata`

func scanEpisode(row pgx.Row) (*memory.Episode, error) {
	var e memory.Episode
	var meta memory.Metadata
	err := row.Scan(&e.ID, &e.Scope, &e.SessionID, &e.Content, &e.Importance,
		&e.ReferenceCount, &e.Consolidated, &e.ConsolidationStatus,
		&e.RetryCount, &e.LastError, &e.CreatedAt, &e.LastReferencedAt,
		&e.ExpiresAt, &meta)
	if err != nil {
		return nil, err
	}
	e.Metadata = &meta
	return &e, nil
}

// StoreEpisode sanitizes content, derives the embedding, and inserts a new
// pending episode.
func (s *Store) StoreEpisode(ctx context.Context, in memory.EpisodeInput) (*memory.Episode, error) {
	content := memory.SanitizeContent(in.Content)

	importance := in.Importance
	if importance == 0 {
		importance = memory.DefaultImportance
	}
	if importance < 1 || importance > 10 {
		return nil, fmt.Errorf("importance must be between 1 and 10, got %d", in.Importance)
	}

	ttl := in.TTL
	if ttl == 0 {
		ttl = memory.DefaultEpisodeTTL
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	expiresAt := time.Now().UTC().Add(ttl)

	row := s.pool.QueryRow(ctx, `INSERT INTO episodes
		(id, scope, session_id, content, embedding, importance, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+episodeCols,
		id, in.Scope, in.SessionID, content, pgvector.NewVector(vec),
		importance, expiresAt, in.Metadata.Clone())

	episode, err := scanEpisode(row)
	if err != nil {
		return nil, fmt.Errorf("inserting episode: %w", err)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeEpisode),
		MemoryID:   episode.ID.String(),
		Scope:      episode.Scope,
	})

	return episode, nil
}

// GetEpisode returns an episode without touching reference counters.
func (s *Store) GetEpisode(ctx context.Context, id uuid.UUID) (*memory.Episode, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+episodeCols+` FROM episodes WHERE id = $1`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: episode %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching episode: %w", err)
	}
	return episode, nil
}

// PendingEpisodes returns episodes awaiting consolidation, oldest first.
func (s *Store) PendingEpisodes(ctx context.Context, limit int) ([]*memory.Episode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+episodeCols+` FROM episodes
		WHERE consolidation_status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*memory.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// MarkEpisodesConsolidated flips consolidated=true and status=done.
func (s *Store) MarkEpisodesConsolidated(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE episodes
		SET consolidated = TRUE, consolidation_status = 'done', last_error = NULL
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("marking episodes consolidated: %w", err)
	}
	return nil
}

// MarkEpisodeError records a consolidation failure and bumps retry_count.
func (s *Store) MarkEpisodeError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE episodes
		SET consolidation_status = 'error', last_error = $2, retry_count = retry_count + 1
		WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("recording episode error: %w", err)
	}
	return nil
}
