package postgres

// schema contains the SQL statements creating the memory tables and the
// indexes enforcing the data-model invariants. All statements are
// idempotent so migration is safe to re-run.
//
// The two partial unique indexes on facts enforce the one-active-fact
// invariant per uniqueness key: (entity_id, scope, predicate) when an
// entity is attached, (subject, predicate) otherwise. Writers still
// supersede transactionally; the indexes make races fail closed.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS episodes (
		id UUID PRIMARY KEY,
		scope TEXT NOT NULL,
		session_id TEXT,
		content TEXT NOT NULL,
		embedding vector(384),
		content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
		importance INT NOT NULL DEFAULT 5,
		reference_count INT NOT NULL DEFAULT 0,
		consolidated BOOLEAN NOT NULL DEFAULT FALSE,
		consolidation_status TEXT NOT NULL DEFAULT 'pending',
		retry_count INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_referenced_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_pending
		ON episodes (created_at) WHERE consolidation_status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_expires ON episodes (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_tsv ON episodes USING GIN (content_tsv)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_embedding
		ON episodes USING hnsw (embedding vector_cosine_ops)`,

	`CREATE TABLE IF NOT EXISTS entities (
		id UUID PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		canonical_name TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		aliases TEXT[] NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (tenant_id, canonical_name, entity_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_name
		ON entities (tenant_id, lower(canonical_name))`,

	`CREATE TABLE IF NOT EXISTS facts (
		id UUID PRIMARY KEY,
		subject TEXT NOT NULL,
		predicate TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(384),
		content_tsv tsvector GENERATED ALWAYS AS
			(to_tsvector('english', subject || ' ' || predicate || ' ' || content)) STORED,
		importance INT NOT NULL DEFAULT 5,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		decay_rate DOUBLE PRECISION NOT NULL DEFAULT 0.008,
		permanence TEXT NOT NULL DEFAULT 'standard',
		scope TEXT NOT NULL,
		source_episode_id UUID,
		supersedes_id UUID REFERENCES facts(id),
		entity_id UUID REFERENCES entities(id),
		validity TEXT NOT NULL DEFAULT 'active',
		reference_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_referenced_at TIMESTAMPTZ,
		last_confirmed_at TIMESTAMPTZ,
		tags TEXT[] NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_facts_active_entity
		ON facts (entity_id, scope, predicate)
		WHERE validity = 'active' AND entity_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_facts_active_subject
		ON facts (subject, predicate)
		WHERE validity = 'active' AND entity_id IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_facts_scope ON facts (scope) WHERE validity = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts (entity_id) WHERE entity_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_facts_decay
		ON facts (decay_rate) WHERE validity = 'active' AND decay_rate > 0`,
	`CREATE INDEX IF NOT EXISTS idx_facts_tsv ON facts USING GIN (content_tsv)`,
	`CREATE INDEX IF NOT EXISTS idx_facts_embedding
		ON facts USING hnsw (embedding vector_cosine_ops)`,

	`CREATE TABLE IF NOT EXISTS rules (
		id UUID PRIMARY KEY,
		content TEXT NOT NULL,
		embedding vector(384),
		content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
		scope TEXT NOT NULL,
		maturity TEXT NOT NULL DEFAULT 'candidate',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		decay_rate DOUBLE PRECISION NOT NULL DEFAULT 0.008,
		permanence TEXT NOT NULL DEFAULT 'standard',
		effectiveness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		applied_count INT NOT NULL DEFAULT 0,
		success_count INT NOT NULL DEFAULT 0,
		harmful_count INT NOT NULL DEFAULT 0,
		source_episode_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_applied_at TIMESTAMPTZ,
		last_evaluated_at TIMESTAMPTZ,
		last_confirmed_at TIMESTAMPTZ,
		reference_count INT NOT NULL DEFAULT 0,
		last_referenced_at TIMESTAMPTZ,
		tags TEXT[] NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_scope ON rules (scope)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_tsv ON rules USING GIN (content_tsv)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_embedding
		ON rules USING hnsw (embedding vector_cosine_ops)`,

	`CREATE TABLE IF NOT EXISTS memory_links (
		source_type TEXT NOT NULL,
		source_id UUID NOT NULL,
		target_type TEXT NOT NULL,
		target_id UUID NOT NULL,
		relation TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (source_type, source_id, target_type, target_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links (target_type, target_id)`,
}
