package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/model"
	"github.com/clarify-edu/clarify-api/internal/similarity"
)

//go:embed migrations.sql
var migrations embed.FS

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStore is the pgvector-backed store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, pings and optionally applies the schema.
func NewPostgresStore(ctx context.Context, cfg DatabaseConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &PostgresStore{db: db}
	if cfg.Migrate {
		if err := s.initializeSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Courses

// CreateCourse inserts the course and the creator's enrollment in one
// transaction.
func (s *PostgresStore) CreateCourse(ctx context.Context, c *model.Course, creatorEmail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO courses (id, code, name, creator_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Code, c.Name, c.CreatorID, c.CreatedAt); err != nil {
		return wrapErr("create course", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO course_enrollments (email, course_id, role)
		VALUES (LOWER($1), $2, $3)
		ON CONFLICT (email, course_id) DO UPDATE SET role = EXCLUDED.role`,
		creatorEmail, c.ID, model.RoleCreator); err != nil {
		return wrapErr("enroll course creator", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	c := &model.Course{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, creator_id, created_at
		FROM courses
		WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatorID, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr("get course", err)
	}
	return c, nil
}

// DeleteCourse relies on ON DELETE CASCADE for enrollments, threads and
// everything hanging off them.
func (s *PostgresStore) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	return expectRow("delete course", res, err)
}

// Enrollments

func (s *PostgresStore) GetEnrollment(ctx context.Context, email, courseID string) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := s.db.QueryRowContext(ctx, `
		SELECT email, course_id, role
		FROM course_enrollments
		WHERE email = LOWER($1) AND course_id = $2`,
		email, courseID,
	).Scan(&e.Email, &e.CourseID, &e.Role)
	if err != nil {
		return nil, wrapErr("get enrollment", err)
	}
	return e, nil
}

func (s *PostgresStore) ListEnrollments(ctx context.Context, email string) ([]model.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, course_id, role
		FROM course_enrollments
		WHERE email = LOWER($1)
		ORDER BY course_id`, email)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.Email, &e.CourseID, &e.Role); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddEnrollment(ctx context.Context, e *model.Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_enrollments (email, course_id, role)
		VALUES (LOWER($1), $2, $3)
		ON CONFLICT (email, course_id) DO UPDATE SET role = EXCLUDED.role`,
		e.Email, e.CourseID, e.Role)
	return wrapErr("add enrollment", err)
}

func (s *PostgresStore) EnrollStudents(ctx context.Context, courseID string, emails []string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO course_enrollments (email, course_id, role)
		SELECT DISTINCT LOWER(e), $1::uuid, $3
		FROM UNNEST($2::text[]) AS e
		ON CONFLICT (email, course_id) DO NOTHING`,
		courseID, pq.Array(emails), model.RoleStudent)
	if err != nil {
		return 0, wrapErr("enroll students", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("enroll students: rows affected: %w", err)
	}
	return int(n), nil
}

// Threads

const threadColumns = `t.id, t.course_id, t.title, t.content, t.tags, t.creator_id, t.creator_role, t.created_at, t.updated_at`

func scanThread(row interface{ Scan(...any) error }, t *model.Thread, extra ...any) error {
	dest := []any{&t.ID, &t.CourseID, &t.Title, &t.Content, pq.Array(&t.Tags), &t.CreatorID, &t.CreatorRole, &t.CreatedAt, &t.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (s *PostgresStore) ListThreads(ctx context.Context, courseID string) ([]model.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+threadColumns+`,
			(SELECT COUNT(*) FROM comments c WHERE c.thread_id = t.id),
			COALESCE((SELECT ARRAY_AGG(n.anonymous_name ORDER BY n.anonymous_name)
				FROM thread_anonymous_names n WHERE n.thread_id = t.id), '{}')
		FROM threads t
		WHERE t.course_id = $1
		ORDER BY t.created_at DESC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []model.Thread
	for rows.Next() {
		var t model.Thread
		if err := scanThread(rows, &t, &t.CommentCount, pq.Array(&t.AnonymousNames)); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListGraphThreads(ctx context.Context, courseID string) ([]model.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+threadColumns+`, t.embedding
		FROM threads t
		WHERE t.course_id = $1
		ORDER BY t.created_at, t.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list graph threads: %w", err)
	}
	defer rows.Close()

	return scanThreadsWithEmbedding(rows)
}

func (s *PostgresStore) ListThreadsMissingEmbedding(ctx context.Context, limit int) ([]model.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+threadColumns+`, t.embedding
		FROM threads t
		WHERE t.embedding IS NULL
		ORDER BY t.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list threads missing embedding: %w", err)
	}
	defer rows.Close()

	return scanThreadsWithEmbedding(rows)
}

func scanThreadsWithEmbedding(rows *sql.Rows) ([]model.Thread, error) {
	var out []model.Thread
	for rows.Next() {
		var t model.Thread
		var emb vector
		if err := scanThread(rows, &t, &emb); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		t.Embedding = emb
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	t := &model.Thread{}
	var emb vector
	row := s.db.QueryRowContext(ctx, `SELECT `+threadColumns+`, t.embedding FROM threads t WHERE t.id = $1`, id)
	if err := scanThread(row, t, &emb); err != nil {
		return nil, wrapErr("get thread", err)
	}
	t.Embedding = emb
	return t, nil
}

func (s *PostgresStore) CreateThread(ctx context.Context, t *model.Thread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, course_id, title, content, tags, creator_id, creator_role, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.CourseID, t.Title, t.Content, pq.Array(t.Tags), t.CreatorID, t.CreatorRole,
		vector(t.Embedding), t.CreatedAt, t.UpdatedAt)
	return wrapErr("create thread", err)
}

func (s *PostgresStore) UpdateThread(ctx context.Context, t *model.Thread) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads
		SET title = $2, content = $3, tags = $4, embedding = $5, updated_at = $6
		WHERE id = $1`,
		t.ID, t.Title, t.Content, pq.Array(t.Tags), vector(t.Embedding), t.UpdatedAt)
	return expectRow("update thread", res, err)
}

func (s *PostgresStore) SetThreadEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE threads SET embedding = $2 WHERE id = $1`, id, vector(embedding))
	return expectRow("set thread embedding", res, err)
}

// DeleteThread relies on ON DELETE CASCADE for comments, names and
// summaries.
func (s *PostgresStore) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id)
	return expectRow("delete thread", res, err)
}

// ThreadSimilarities scores all unordered pairs among ids in one statement
// using pgvector's cosine distance. Scores are clamped to [0,1]. A zero
// vector has no cosine, so its pairs fail with similarity.ErrZeroVector as
// they do in process.
func (s *PostgresStore) ThreadSimilarities(ctx context.Context, ids []string) ([]graph.Score, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, b.id,
			CASE WHEN vector_norm(a.embedding) = 0 OR vector_norm(b.embedding) = 0 THEN NULL
			ELSE GREATEST(0, LEAST(1, 1 - (a.embedding <=> b.embedding))) END
		FROM threads a
		JOIN threads b ON a.id < b.id
		WHERE a.id = ANY($1::uuid[]) AND b.id = ANY($1::uuid[])
			AND a.embedding IS NOT NULL AND b.embedding IS NOT NULL`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("thread similarities: %w", err)
	}
	defer rows.Close()

	out := make([]graph.Score, 0, len(ids)*(len(ids)-1)/2)
	for rows.Next() {
		var (
			a, b  string
			score sql.NullFloat64
		)
		if err := rows.Scan(&a, &b, &score); err != nil {
			return nil, fmt.Errorf("scan similarity: %w", err)
		}
		sc, err := pairScore(a, b, score)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func pairScore(a, b string, score sql.NullFloat64) (graph.Score, error) {
	if !score.Valid {
		return graph.Score{}, fmt.Errorf("threads %s/%s: %w", a, b, similarity.ErrZeroVector)
	}
	return graph.Score{A: a, B: b, Score: score.Float64}, nil
}

// Anonymous names

func (s *PostgresStore) GetAnonymousName(ctx context.Context, threadID, userID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT anonymous_name FROM thread_anonymous_names
		WHERE thread_id = $1 AND user_id = $2`, threadID, userID).Scan(&name)
	if err != nil {
		return "", wrapErr("get anonymous name", err)
	}
	return name, nil
}

func (s *PostgresStore) ListAnonymousNames(ctx context.Context, threadID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT anonymous_name FROM thread_anonymous_names
		WHERE thread_id = $1
		ORDER BY anonymous_name`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list anonymous names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan anonymous name: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetAnonymousName(ctx context.Context, threadID, userID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_anonymous_names (thread_id, user_id, anonymous_name)
		VALUES ($1, $2, $3)`, threadID, userID, name)
	return wrapErr("set anonymous name", err)
}

// Comments

const commentColumns = `c.id, c.thread_id, c.parent_id, c.content, c.creator_id, c.creator_role,
	COALESCE(n.anonymous_name, ''), c.created_at, c.updated_at`

const commentFrom = `FROM comments c
	LEFT JOIN thread_anonymous_names n ON n.thread_id = c.thread_id AND n.user_id = c.creator_id`

func scanComment(row interface{ Scan(...any) error }) (*model.Comment, error) {
	c := &model.Comment{}
	var parent sql.NullString
	if err := row.Scan(&c.ID, &c.ThreadID, &parent, &c.Content, &c.CreatorID, &c.CreatorRole,
		&c.AnonymousName, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = &parent.String
	}
	return c, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, threadID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+` `+commentFrom+`
		WHERE c.thread_id = $1
		ORDER BY c.created_at`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountComments(ctx context.Context, threadID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE thread_id = $1`, threadID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, threadID, commentID string) (*model.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+` `+commentFrom+`
		WHERE c.id = $1 AND c.thread_id = $2`, commentID, threadID))
	if err != nil {
		return nil, wrapErr("get comment", err)
	}
	return c, nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, c *model.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, thread_id, parent_id, content, creator_id, creator_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.ThreadID, c.ParentID, c.Content, c.CreatorID, c.CreatorRole, c.CreatedAt, c.UpdatedAt)
	return wrapErr("create comment", err)
}

func (s *PostgresStore) UpdateComment(ctx context.Context, c *model.Comment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE comments SET content = $2, updated_at = $3 WHERE id = $1`,
		c.ID, c.Content, c.UpdatedAt)
	return expectRow("update comment", res, err)
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete comment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE parent_id = $1`, commentID); err != nil {
		return fmt.Errorf("delete replies: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, commentID)
	if err := expectRow("delete comment", res, err); err != nil {
		return err
	}
	return tx.Commit()
}

// Summaries

func (s *PostgresStore) GetSummary(ctx context.Context, threadID string) (*model.ThreadSummary, error) {
	sum := &model.ThreadSummary{}
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, content, comment_count, created_at, updated_at
		FROM thread_summaries WHERE thread_id = $1`, threadID,
	).Scan(&sum.ThreadID, &sum.Content, &sum.CommentCount, &sum.CreatedAt, &sum.UpdatedAt)
	if err != nil {
		return nil, wrapErr("get summary", err)
	}
	return sum, nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum *model.ThreadSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_summaries (thread_id, content, comment_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE
		SET content = EXCLUDED.content,
			comment_count = EXCLUDED.comment_count,
			updated_at = EXCLUDED.updated_at`,
		sum.ThreadID, sum.Content, sum.CommentCount, sum.CreatedAt, sum.UpdatedAt)
	return wrapErr("save summary", err)
}

// Search

func (s *PostgresStore) MatchThreads(ctx context.Context, q model.MatchQuery) ([]model.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, content, similarity, created_at
		FROM (
			SELECT id, course_id, title, content, created_at, 1 - (embedding <=> $1) AS similarity
			FROM threads
			WHERE embedding IS NOT NULL AND course_id = ANY($2::uuid[])
		) scored
		WHERE similarity >= $3
		ORDER BY similarity DESC, id
		LIMIT $4`,
		vector(q.Embedding), pq.Array(q.Courses), q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("match threads: %w", err)
	}
	defer rows.Close()

	return scanSearchResults(rows)
}

func (s *PostgresStore) SearchThreadsText(ctx context.Context, q model.MatchQuery) ([]model.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, content,
			ts_rank(to_tsvector('english', title || ' ' || content), plainto_tsquery('english', $1)) AS rank,
			created_at
		FROM threads
		WHERE course_id = ANY($2::uuid[])
			AND to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, id
		LIMIT $3`,
		q.Text, pq.Array(q.Courses), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}
	defer rows.Close()

	return scanSearchResults(rows)
}

func scanSearchResults(rows *sql.Rows) ([]model.SearchResult, error) {
	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		if err := rows.Scan(&r.ThreadID, &r.CourseID, &r.Title, &r.Content, &r.Similarity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// wrapErr maps driver errors onto the package sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectRow(op string, res sql.Result, err error) error {
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
