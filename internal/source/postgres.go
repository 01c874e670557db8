package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storyforge/storyforge/internal/domain"
	"github.com/storyforge/storyforge/internal/errors"
)

// PostgresSource reads story batches from a shared Postgres backlog.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects to Postgres and verifies the connection.
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, "failed to parse postgres dsn", err).
			WithSuggestion("Check the source.dsn value in storyforge.yaml")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, "failed to create postgres pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, "failed to reach postgres", err).
			WithSuggestion("Verify the database is up and the dsn credentials are valid")
	}

	return &PostgresSource{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// FetchBatch loads every story belonging to the batch, with its
// dependency edges.
func (s *PostgresSource) FetchBatch(ctx context.Context, batchID string) ([]domain.Story, error) {
	query := `
		SELECT s.id, s.title, s.description, s.priority, s.estimated_hours,
		       COALESCE(array_agg(d.depends_on) FILTER (WHERE d.depends_on IS NOT NULL), '{}'),
		       s.tags
		FROM stories s
		LEFT JOIN story_dependencies d ON d.story_id = s.id AND d.batch_id = s.batch_id
		WHERE s.batch_id = $1
		GROUP BY s.id, s.title, s.description, s.priority, s.estimated_hours, s.tags
		ORDER BY s.id
	`

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable,
			fmt.Sprintf("failed to query stories for batch %s", batchID), err)
	}
	defer rows.Close()

	var stories []domain.Story
	for rows.Next() {
		var st domain.Story
		var priority string
		if err := rows.Scan(&st.ID, &st.Title, &st.Description, &priority,
			&st.EstimatedHours, &st.Dependencies, &st.Tags); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSourceInvalid,
				fmt.Sprintf("failed to scan story row in batch %s", batchID), err)
		}
		st.Priority = domain.Priority(priority)
		if err := st.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSourceInvalid,
				fmt.Sprintf("invalid story %s in batch %s", st.ID, batchID), err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable,
			fmt.Sprintf("failed while reading stories for batch %s", batchID), err)
	}

	if len(stories) == 0 {
		return nil, errors.New(errors.ErrCodeSourceNotFound,
			fmt.Sprintf("no stories found for batch %s", batchID)).
			WithSuggestion("Check the batch id against the stories table")
	}
	return stories, nil
}
