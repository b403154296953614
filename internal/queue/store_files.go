package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddFiles attaches scanned files to a gallery and records the aggregate
// count and byte size on the gallery row.
func (s *Store) AddFiles(ctx context.Context, galleryID int64, files []File) error {
	if len(files) == 0 {
		return fmt.Errorf("gallery %d: no files to add", galleryID)
	}
	var total int64
	for i, file := range files {
		total += file.Bytes
		if err := s.execWithoutResultRetry(
			ctx,
			`INSERT INTO gallery_files (gallery_id, name, path, bytes, position, uploaded)
             VALUES (?, ?, ?, ?, ?, 0)`,
			galleryID, file.Name, file.Path, file.Bytes, i,
		); err != nil {
			return fmt.Errorf("insert gallery file: %w", err)
		}
	}
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE galleries SET file_count = file_count + ?, total_bytes = total_bytes + ?, updated_at = ? WHERE id = ?`,
		len(files),
		total,
		time.Now().UTC().Format(time.RFC3339Nano),
		galleryID,
	)
	if err != nil {
		return fmt.Errorf("update gallery totals: %w", err)
	}
	return nil
}

// Files returns all files belonging to a gallery in upload order.
func (s *Store) Files(ctx context.Context, galleryID int64) ([]File, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM gallery_files WHERE gallery_id = ? ORDER BY position`, galleryID)
}

// PendingFiles returns the gallery's files not yet recorded as uploaded.
func (s *Store) PendingFiles(ctx context.Context, galleryID int64) ([]File, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM gallery_files WHERE gallery_id = ? AND uploaded = 0 ORDER BY position`, galleryID)
}

func (s *Store) queryFiles(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query gallery files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// MarkFileUploaded records a successful per-file upload with the identifier
// the host assigned.
func (s *Store) MarkFileUploaded(ctx context.Context, fileID int64, hostImageID string) error {
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE gallery_files SET uploaded = 1, host_image_id = ?, uploaded_at = ? WHERE id = ?`,
		nullableString(hostImageID),
		time.Now().UTC().Format(time.RFC3339Nano),
		fileID,
	)
	if err != nil {
		return fmt.Errorf("mark file uploaded: %w", err)
	}
	return nil
}

const fileColumns = "id, gallery_id, name, path, bytes, position, uploaded, host_image_id, uploaded_at"

func scanFile(scanner interface{ Scan(dest ...any) error }) (File, error) {
	var (
		file        File
		uploaded    sql.NullInt64
		hostImageID sql.NullString
		uploadedRaw sql.NullString
	)
	if err := scanner.Scan(
		&file.ID,
		&file.GalleryID,
		&file.Name,
		&file.Path,
		&file.Bytes,
		&file.Position,
		&uploaded,
		&hostImageID,
		&uploadedRaw,
	); err != nil {
		return File{}, err
	}
	file.Uploaded = uploaded.Int64 != 0
	file.HostImageID = hostImageID.String
	if uploadedRaw.Valid {
		if at, err := parseTimeString(uploadedRaw.String); err == nil {
			file.UploadedAt = &at
		}
	}
	return file, nil
}
