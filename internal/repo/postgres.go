package repo

import (
    "context"
    "errors"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/HamedShams/sprint-lens/internal/config"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Snapshot is one appended analysis result. The payload is the engine's result
// object persisted verbatim as jsonb.
type Snapshot struct {
    ID      string          `json:"id"`
    BoardID int64           `json:"boardId"`
    Kind    string          `json:"kind"`
    TakenAt time.Time       `json:"takenAt"`
    Payload []byte          `json:"payload"`
}

// AppendSnapshot writes one history row. The history is append-only; rows are
// never updated, only pruned by retention.
func (r *Repository) AppendSnapshot(ctx context.Context, boardID int64, kind string, payload []byte) (string, error) {
    id := uuid.NewString()
    const q = `INSERT INTO snapshots(id, board_id, kind, taken_at, payload) VALUES($1,$2,$3,now(),$4)`
    if _, err := r.db.Pool.Exec(ctx, q, id, boardID, kind, payload); err != nil { return "", err }
    return id, nil
}

// ListSnapshots returns the most recent snapshots for a board, newest first.
func (r *Repository) ListSnapshots(ctx context.Context, boardID int64, kind string, limit int) ([]Snapshot, error) {
    if limit <= 0 { limit = 20 }
    const q = `SELECT id, board_id, kind, taken_at, payload FROM snapshots
        WHERE board_id=$1 AND ($2='' OR kind=$2) ORDER BY taken_at DESC LIMIT $3`
    rows, err := r.db.Pool.Query(ctx, q, boardID, kind, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []Snapshot
    for rows.Next() {
        var s Snapshot
        if err := rows.Scan(&s.ID, &s.BoardID, &s.Kind, &s.TakenAt, &s.Payload); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

// PruneSnapshots enforces retention: keep the most recent keep rows per board
// and kind, and drop anything older than maxAge regardless.
func (r *Repository) PruneSnapshots(ctx context.Context, keep int, maxAge time.Duration) error {
    batch := &pgx.Batch{}
    batch.Queue(`DELETE FROM snapshots s WHERE s.id NOT IN (
        SELECT id FROM snapshots s2
        WHERE s2.board_id = s.board_id AND s2.kind = s.kind
        ORDER BY s2.taken_at DESC LIMIT $1)`, keep)
    batch.Queue(`DELETE FROM snapshots WHERE taken_at < $1`, time.Now().UTC().Add(-maxAge))
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for i := 0; i < 2; i++ {
        if _, err := br.Exec(); err != nil { return err }
    }
    return nil
}

// Job runs
func (r *Repository) StartJobRun(ctx context.Context, boardsJSON string) (int64, error) {
    const q = `INSERT INTO job_runs(started_at, boards, success) VALUES(now(), $1, false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, boardsJSON).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, boardsAnalyzed, sprintsAnalyzed int, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), boards_analyzed=$2, sprints_analyzed=$3, success=$4, error=$5 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, boardsAnalyzed, sprintsAnalyzed, success, errStr)
    return err
}

type LastRun struct {
    StartedAt       time.Time  `json:"started_at"`
    FinishedAt      *time.Time `json:"finished_at"`
    Boards          string     `json:"boards"`
    BoardsAnalyzed  int        `json:"boards_analyzed"`
    SprintsAnalyzed int        `json:"sprints_analyzed"`
    Success         bool       `json:"success"`
    Error           string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at, boards::text,
        coalesce(boards_analyzed,0), coalesce(sprints_analyzed,0),
        coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Boards, &lr.BoardsAnalyzed, &lr.SprintsAnalyzed, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}
