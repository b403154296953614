package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewGallery inserts a gallery in the Validating state. Files are attached
// separately once scanning completes.
func (s *Store) NewGallery(ctx context.Context, name, sourcePath string, thumbSize, contentType int) (*Gallery, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("gallery name must not be empty")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO galleries (
            name, source_path, state, thumb_size, content_type, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name,
		nullableString(sourcePath),
		StateValidating,
		thumbSize,
		contentType,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert gallery: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a gallery by identifier. A missing row returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Gallery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE id = ?`, id)
	gallery, err := scanGallery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery: %w", err)
	}
	return gallery, nil
}

// List returns galleries filtered by state set (or all galleries when no
// state is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, states ...State) ([]*Gallery, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + galleryColumns + ` FROM galleries`
	orderClause := ` ORDER BY created_at`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list galleries: %w", err)
	}
	defer rows.Close()

	var galleries []*Gallery
	for rows.Next() {
		gallery, err := scanGallery(rows)
		if err != nil {
			return nil, err
		}
		galleries = append(galleries, gallery)
	}
	return galleries, rows.Err()
}

// NextForStates returns the oldest gallery matching any of the provided states.
func (s *Store) NextForStates(ctx context.Context, states ...State) (*Gallery, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(states))
	args := make([]any, len(states))
	for i, state := range states {
		args[i] = state
	}

	query := `SELECT ` + galleryColumns + ` FROM galleries WHERE state IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	gallery, err := scanGallery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return gallery, nil
}

// Update persists non-state fields of an existing gallery. State changes go
// through Transition so the state machine is never bypassed.
func (s *Store) Update(ctx context.Context, gallery *Gallery) error {
	if gallery == nil {
		return errors.New("gallery is nil")
	}
	gallery.UpdatedAt = time.Now().UTC()
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE galleries
         SET name = ?, source_path = ?, file_count = ?, total_bytes = ?, done_bytes = ?,
             host_gallery_id = ?, gallery_url = ?, template_path = ?, archive_path = ?,
             thumb_size = ?, content_type = ?, error_message = ?, error_kind = ?,
             ext1 = ?, ext2 = ?, ext3 = ?, ext4 = ?,
             custom1 = ?, custom2 = ?, custom3 = ?, custom4 = ?,
             updated_at = ?
         WHERE id = ?`,
		gallery.Name,
		nullableString(gallery.SourcePath),
		gallery.FileCount,
		gallery.TotalBytes,
		gallery.DoneBytes,
		nullableString(gallery.HostGalleryID),
		nullableString(gallery.GalleryURL),
		nullableString(gallery.TemplatePath),
		nullableString(gallery.ArchivePath),
		gallery.ThumbSize,
		gallery.ContentType,
		nullableString(gallery.ErrorMessage),
		nullableString(gallery.ErrorKind),
		nullableString(gallery.Ext1),
		nullableString(gallery.Ext2),
		nullableString(gallery.Ext3),
		nullableString(gallery.Ext4),
		nullableString(gallery.Custom1),
		nullableString(gallery.Custom2),
		nullableString(gallery.Custom3),
		nullableString(gallery.Custom4),
		gallery.UpdatedAt.Format(time.RFC3339Nano),
		gallery.ID,
	)
	if err != nil {
		return fmt.Errorf("update gallery: %w", err)
	}
	return nil
}

// FieldPatch is a partial gallery update. Nil pointers leave the stored
// value untouched.
type FieldPatch struct {
	Name          *string
	HostGalleryID *string
	GalleryURL    *string
	TemplatePath  *string
	ArchivePath   *string
	ErrorMessage  *string
	ErrorKind     *string
	DoneBytes     *int64
	Ext           [4]*string
	Custom        [4]*string
}

// UpdateFields applies a partial update to a gallery row.
func (s *Store) UpdateFields(ctx context.Context, id int64, patch FieldPatch) error {
	sets := make([]string, 0, 16)
	args := make([]any, 0, 16)

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.HostGalleryID != nil {
		add("host_gallery_id", nullableString(*patch.HostGalleryID))
	}
	if patch.GalleryURL != nil {
		add("gallery_url", nullableString(*patch.GalleryURL))
	}
	if patch.TemplatePath != nil {
		add("template_path", nullableString(*patch.TemplatePath))
	}
	if patch.ArchivePath != nil {
		add("archive_path", nullableString(*patch.ArchivePath))
	}
	if patch.ErrorMessage != nil {
		add("error_message", nullableString(*patch.ErrorMessage))
	}
	if patch.ErrorKind != nil {
		add("error_kind", nullableString(*patch.ErrorKind))
	}
	if patch.DoneBytes != nil {
		add("done_bytes", *patch.DoneBytes)
	}
	for i, value := range patch.Ext {
		if value != nil {
			add(fmt.Sprintf("ext%d", i+1), nullableString(*value))
		}
	}
	for i, value := range patch.Custom {
		if value != nil {
			add(fmt.Sprintf("custom%d", i+1), nullableString(*value))
		}
	}

	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)

	res, err := s.execWithRetry(ctx, `UPDATE galleries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update gallery fields: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProgress records the aggregated byte counter. Updates are accepted only
// when monotonically non-decreasing, making delivery order-insensitive for
// progress reports arriving out of sequence.
func (s *Store) SetProgress(ctx context.Context, id int64, doneBytes int64) error {
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE galleries SET done_bytes = ?, updated_at = ? WHERE id = ? AND done_bytes <= ?`,
		doneBytes,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		doneBytes,
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// SetError attaches an error message and kind to a gallery record so the UI
// can render the cause. It does not change state.
func (s *Store) SetError(ctx context.Context, id int64, message, kind string) error {
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE galleries SET error_message = ?, error_kind = ?, updated_at = ? WHERE id = ?`,
		nullableString(message),
		nullableString(kind),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	return nil
}
