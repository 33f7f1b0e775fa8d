package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cinefluent/sublearn/internal/segment"
	"github.com/cinefluent/sublearn/internal/subtitle"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// ListSubtitles returns the stored subtitle records for a (video, language)
// pair, newest first.
func (s *SQLiteStore) ListSubtitles(ctx context.Context, videoID, language string) ([]SubtitleRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, video_id, language, title, source, format, external_id, uploaded_by,
			total_cues, total_segments, duration, avg_difficulty, vocabulary_count, created_at
		 FROM subtitles
		 WHERE video_id = ? AND language = ?
		 ORDER BY created_at DESC`,
		videoID,
		language,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]SubtitleRecord, 0)
	for rows.Next() {
		var item SubtitleRecord
		var source string
		var format string
		var externalID sql.NullString
		var uploadedBy sql.NullString
		if err := rows.Scan(
			&item.Metadata.ID,
			&item.Metadata.VideoID,
			&item.Metadata.Language,
			&item.Metadata.Title,
			&source,
			&format,
			&externalID,
			&uploadedBy,
			&item.TotalCues,
			&item.TotalSegments,
			&item.Duration,
			&item.AvgDifficulty,
			&item.VocabularyCount,
			&item.Metadata.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.Metadata.Source = subtitle.Source(source)
		item.Format = subtitle.Format(format)
		item.Metadata.ExternalID = externalID.String
		item.UploadedBy = uploadedBy.String
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// SaveProcessed writes a processed subtitle with its cues and segments in
// one transaction.
func (s *SQLiteStore) SaveProcessed(ctx context.Context, record SubtitleRecord, cues []subtitle.Cue, segments []segment.LearningSegment) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	createdAt := record.Metadata.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO subtitles (
			id, video_id, language, title, source, format, external_id, uploaded_by,
			total_cues, total_segments, duration, avg_difficulty, vocabulary_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Metadata.ID,
		record.Metadata.VideoID,
		record.Metadata.Language,
		record.Metadata.Title,
		string(record.Metadata.Source),
		string(record.Format),
		record.Metadata.ExternalID,
		record.UploadedBy,
		record.TotalCues,
		record.TotalSegments,
		record.Duration,
		record.AvgDifficulty,
		record.VocabularyCount,
		createdAt,
	); err != nil {
		return err
	}

	for i, cue := range cues {
		var wordsJSON []byte
		wordsJSON, err = json.Marshal(cue.Words)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO subtitle_cues (id, subtitle_id, cue_index, start_time, end_time, text, words_json, difficulty_score)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			cue.ID,
			record.Metadata.ID,
			i,
			cue.StartTime,
			cue.EndTime,
			cue.Text,
			string(wordsJSON),
			cue.DifficultyScore,
		); err != nil {
			return err
		}
	}

	for _, seg := range segments {
		var vocabJSON []byte
		vocabJSON, err = json.Marshal(seg.VocabularyWords)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO learning_segments (id, subtitle_id, start_time, end_time, difficulty_score, vocabulary_json, cue_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			seg.ID,
			record.Metadata.ID,
			seg.StartTime,
			seg.EndTime,
			seg.DifficultyScore,
			string(vocabJSON),
			len(seg.Cues),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetCues returns the stored cues of a subtitle in cue order
func (s *SQLiteStore) GetCues(ctx context.Context, subtitleID string) ([]subtitle.Cue, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, cue_index, start_time, end_time, text, words_json, difficulty_score
		 FROM subtitle_cues
		 WHERE subtitle_id = ?
		 ORDER BY cue_index ASC`,
		subtitleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]subtitle.Cue, 0)
	for rows.Next() {
		var cue subtitle.Cue
		var wordsJSON string
		if err := rows.Scan(&cue.ID, &cue.Index, &cue.StartTime, &cue.EndTime, &cue.Text, &wordsJSON, &cue.DifficultyScore); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(wordsJSON), &cue.Words); err != nil {
			return nil, err
		}
		ret = append(ret, cue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// GetSegments returns the stored learning segments of a subtitle in time order
func (s *SQLiteStore) GetSegments(ctx context.Context, subtitleID string) ([]SegmentRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, subtitle_id, start_time, end_time, difficulty_score, vocabulary_json, cue_count
		 FROM learning_segments
		 WHERE subtitle_id = ?
		 ORDER BY start_time ASC`,
		subtitleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]SegmentRecord, 0)
	for rows.Next() {
		var item SegmentRecord
		var vocabJSON string
		if err := rows.Scan(&item.ID, &item.SubtitleID, &item.StartTime, &item.EndTime, &item.DifficultyScore, &vocabJSON, &item.CueCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vocabJSON), &item.VocabularyWords); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteSubtitle removes a subtitle with its cues and segments
func (s *SQLiteStore) DeleteSubtitle(ctx context.Context, subtitleID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM subtitle_cues WHERE subtitle_id = ?`, subtitleID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM learning_segments WHERE subtitle_id = ?`, subtitleID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM subtitles WHERE id = ?`, subtitleID); err != nil {
		return err
	}
	return tx.Commit()
}

// PutSubtitleCache upserts one persistent-tier cache entry
func (s *SQLiteStore) PutSubtitleCache(ctx context.Context, row CacheRow) error {
	payload, err := json.Marshal(row.Subtitles)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := row.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := row.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO subtitle_cache (
			cache_key, video_id, language, video_title, subtitles_json, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			video_id=excluded.video_id,
			language=excluded.language,
			video_title=excluded.video_title,
			subtitles_json=excluded.subtitles_json,
			expires_at=excluded.expires_at,
			updated_at=excluded.updated_at`,
		row.CacheKey,
		row.VideoID,
		row.Language,
		row.VideoTitle,
		string(payload),
		row.ExpiresAt.UTC(),
		createdAt,
		updatedAt,
	)
	return err
}

// GetSubtitleCache returns an unexpired persistent-tier entry by key
func (s *SQLiteStore) GetSubtitleCache(ctx context.Context, cacheKey string, now time.Time) ([]subtitle.Metadata, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT subtitles_json
		 FROM subtitle_cache
		 WHERE cache_key = ? AND expires_at > ?`,
		cacheKey,
		now.UTC(),
	)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	var subtitles []subtitle.Metadata
	if err := json.Unmarshal([]byte(payload), &subtitles); err != nil {
		return nil, false, err
	}
	return subtitles, true, nil
}

// DeleteExpiredCache removes subtitle_cache rows whose expires_at is at or before now
func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subtitle_cache WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
