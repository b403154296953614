package queue

import (
	"database/sql"
	"errors"
	"time"
)

const galleryColumns = "id, name, source_path, state, resume_state, file_count, total_bytes, done_bytes, host_gallery_id, gallery_url, template_path, archive_path, thumb_size, content_type, error_message, error_kind, origin_id, ext1, ext2, ext3, ext4, custom1, custom2, custom3, custom4, created_at, updated_at"

func scanGallery(scanner interface{ Scan(dest ...any) error }) (*Gallery, error) {
	var (
		id            int64
		name          string
		sourcePath    sql.NullString
		stateStr      string
		resumeState   sql.NullString
		fileCount     int
		totalBytes    int64
		doneBytes     int64
		hostGalleryID sql.NullString
		galleryURL    sql.NullString
		templatePath  sql.NullString
		archivePath   sql.NullString
		thumbSize     int
		contentType   int
		errorMessage  sql.NullString
		errorKind     sql.NullString
		originID      int64
		ext           [4]sql.NullString
		custom        [4]sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&sourcePath,
		&stateStr,
		&resumeState,
		&fileCount,
		&totalBytes,
		&doneBytes,
		&hostGalleryID,
		&galleryURL,
		&templatePath,
		&archivePath,
		&thumbSize,
		&contentType,
		&errorMessage,
		&errorKind,
		&originID,
		&ext[0], &ext[1], &ext[2], &ext[3],
		&custom[0], &custom[1], &custom[2], &custom[3],
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	gallery := &Gallery{
		ID:            id,
		Name:          name,
		SourcePath:    sourcePath.String,
		State:         State(stateStr),
		ResumeState:   State(resumeState.String),
		FileCount:     fileCount,
		TotalBytes:    totalBytes,
		DoneBytes:     doneBytes,
		HostGalleryID: hostGalleryID.String,
		GalleryURL:    galleryURL.String,
		TemplatePath:  templatePath.String,
		ArchivePath:   archivePath.String,
		ThumbSize:     thumbSize,
		ContentType:   contentType,
		ErrorMessage:  errorMessage.String,
		ErrorKind:     errorKind.String,
		OriginID:      originID,
		Ext1:          ext[0].String,
		Ext2:          ext[1].String,
		Ext3:          ext[2].String,
		Ext4:          ext[3].String,
		Custom1:       custom[0].String,
		Custom2:       custom[1].String,
		Custom3:       custom[2].String,
		Custom4:       custom[3].String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		gallery.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		gallery.UpdatedAt = updated
	}
	return gallery, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
