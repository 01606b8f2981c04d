// ABOUTME: SQLite persistence for saved prospects and research reports
// ABOUTME: Saved prospects upsert on (owner, external id); reports are append and delete only

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpsertSavedProspect stores a prospect, replacing the payload of an existing
// row with the same owner and external id. On return p carries the stored
// row's id and created_at.
func (s *SQLiteStore) UpsertSavedProspect(ctx context.Context, p *SavedProspect) error {
	proposed := p.ID
	if proposed == "" {
		proposed = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var id string
	var created int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO saved_prospects (id, owner_id, kind, external_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, external_id) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`, proposed, p.OwnerID, string(p.Kind), p.ExternalID, string(p.Payload),
		toNanos(p.CreatedAt), toNanos(p.UpdatedAt),
	).Scan(&id, &created)
	if err != nil {
		return wrapErr("upserting saved prospect", err)
	}

	op := OpInsert
	if id != proposed {
		op = OpUpdate
	}
	p.ID = id
	p.CreatedAt = fromNanos(created)

	s.emit(Change{Table: TableSavedProspects, Op: op, OwnerID: p.OwnerID, RowID: id})
	return nil
}

// ListSavedProspects returns the owner's saved prospects, oldest first
func (s *SQLiteStore) ListSavedProspects(ctx context.Context, ownerID string) ([]*SavedProspect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, external_id, payload, created_at, updated_at
		FROM saved_prospects
		WHERE owner_id = ?
		ORDER BY created_at ASC, id
	`, ownerID)
	if err != nil {
		return nil, wrapErr("querying saved prospects", err)
	}
	defer rows.Close()

	var out []*SavedProspect
	for rows.Next() {
		var p SavedProspect
		var kind, payload string
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.OwnerID, &kind, &p.ExternalID, &payload, &created, &updated); err != nil {
			return nil, wrapErr("scanning saved prospect", err)
		}
		p.Kind = ProspectKind(kind)
		p.Payload = []byte(payload)
		p.CreatedAt = fromNanos(created)
		p.UpdatedAt = fromNanos(updated)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating saved prospects", err)
	}
	return out, nil
}

// SaveReport inserts a research report
func (s *SQLiteStore) SaveReport(ctx context.Context, r *ResearchReport) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO research_reports (id, owner_id, prospect_id, prospect_name, company, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.OwnerID, r.ProspectID, r.ProspectName, r.Company, string(r.Document), toNanos(r.CreatedAt))
	if err != nil {
		return wrapErr("inserting report", err)
	}

	s.emit(Change{Table: TableReports, Op: OpInsert, OwnerID: r.OwnerID, RowID: r.ID})
	return nil
}

// ListReports returns the owner's reports, newest first
func (s *SQLiteStore) ListReports(ctx context.Context, ownerID string) ([]*ResearchReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, prospect_id, prospect_name, company, document, created_at
		FROM research_reports
		WHERE owner_id = ?
		ORDER BY created_at DESC, id
	`, ownerID)
	if err != nil {
		return nil, wrapErr("querying reports", err)
	}
	defer rows.Close()

	var out []*ResearchReport
	for rows.Next() {
		var r ResearchReport
		var doc string
		var created int64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.ProspectID, &r.ProspectName, &r.Company, &doc, &created); err != nil {
			return nil, wrapErr("scanning report", err)
		}
		r.Document = []byte(doc)
		r.CreatedAt = fromNanos(created)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating reports", err)
	}
	return out, nil
}

// DeleteReport removes a report. Returns ErrNotFound if the owner has no such report.
func (s *SQLiteStore) DeleteReport(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM research_reports WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return wrapErr("deleting report", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.emit(Change{Table: TableReports, Op: OpDelete, OwnerID: ownerID, RowID: id})
	return nil
}
