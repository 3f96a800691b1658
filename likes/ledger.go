package likes

import (
	"context"
	"errors"
	"log"

	"vidshare/db"
)

var (
	ErrAlreadyLiked  = errors.New("you have already liked this video")
	ErrNotLiked      = errors.New("you have not liked this video")
	ErrVideoNotFound = errors.New("video not found")
)

// Ledger owns the like records and keeps the denormalized like_count on
// videos in step with them. Both effects of a like or unlike are applied
// inside one transaction, so concurrent calls serialize at the store and
// the counter cannot diverge from the ledger.
type Ledger struct {
	DB *db.CompatDB
}

// Like records that user liked video and increments the counter.
// The (user_id, video_id) primary key is the authoritative duplicate
// guard: the increment happens only when the insert reports a new row.
func (l *Ledger) Like(ctx context.Context, userID, videoID string) error {
	return db.WithTx(ctx, l.DB, func(conn *db.CompatConn) error {
		var one int
		if err := conn.QueryRowContext(ctx,
			`SELECT 1 FROM videos WHERE id = ?`, videoID).Scan(&one); err != nil {
			return ErrVideoNotFound
		}

		res, err := conn.ExecContext(ctx,
			`INSERT INTO likes (user_id, video_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			userID, videoID, db.NowUTC())
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrAlreadyLiked
		}

		_, err = conn.ExecContext(ctx,
			`UPDATE videos SET like_count = like_count + 1 WHERE id = ?`, videoID)
		return err
	})
}

// Unlike removes the like record and decrements the counter.
func (l *Ledger) Unlike(ctx context.Context, userID, videoID string) error {
	return db.WithTx(ctx, l.DB, func(conn *db.CompatConn) error {
		var one int
		if err := conn.QueryRowContext(ctx,
			`SELECT 1 FROM videos WHERE id = ?`, videoID).Scan(&one); err != nil {
			return ErrVideoNotFound
		}

		res, err := conn.ExecContext(ctx,
			`DELETE FROM likes WHERE user_id = ? AND video_id = ?`, userID, videoID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotLiked
		}

		// The guard keeps the counter from ever going negative; hitting it
		// means the counter had already drifted below the ledger.
		res, err = conn.ExecContext(ctx,
			`UPDATE videos SET like_count = like_count - 1 WHERE id = ? AND like_count > 0`, videoID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			log.Printf("like counter drift: video %s had like rows but like_count 0", videoID)
		}
		return nil
	})
}

// Reconcile recomputes like_count from the ledger for every video whose
// counter has drifted, returning the repaired video IDs.
func (l *Ledger) Reconcile(ctx context.Context) ([]string, error) {
	rows, err := l.DB.QueryContext(ctx, `
		SELECT v.id FROM videos v
		WHERE v.like_count != (SELECT COUNT(*) FROM likes l WHERE l.video_id = v.id)
		ORDER BY v.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drifted := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		drifted = append(drifted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(drifted) == 0 {
		return drifted, nil
	}

	err = db.WithTx(ctx, l.DB, func(conn *db.CompatConn) error {
		for _, id := range drifted {
			if _, err := conn.ExecContext(ctx,
				`UPDATE videos SET like_count = (SELECT COUNT(*) FROM likes l WHERE l.video_id = videos.id)
				 WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifted, nil
}
