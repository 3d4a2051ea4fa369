package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// multipartThreshold is the payload size above which checkpoint uploads
// switch to the multipart uploader.
const multipartThreshold = 8 * 1024 * 1024

// CheckpointArchiver implements domain.CheckpointArchiver by serializing
// checkpoints evicted from the primary store to JSON and uploading them to an
// S3-compatible bucket. Archived checkpoints are cold storage for audit and
// incident reconstruction; the engine never reads them on the hot path.
type CheckpointArchiver struct {
	writer *Writer
	prefix string
}

// NewCheckpointArchiver creates an archiver writing under the given key
// prefix, e.g. "checkpoints".
func NewCheckpointArchiver(c *Client, prefix string) *CheckpointArchiver {
	if prefix == "" {
		prefix = "checkpoints"
	}
	return &CheckpointArchiver{
		writer: NewWriter(c),
		prefix: prefix,
	}
}

// ArchiveCheckpoint uploads the checkpoint as a JSON object. Keys are
// partitioned by day and suffixed with the creation timestamp and cursor so
// they sort chronologically under a prefix listing.
func (a *CheckpointArchiver) ArchiveCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("s3blob: marshal checkpoint: %w", err)
	}

	key := a.key(cp)
	if len(body) > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, key, bytes.NewReader(body), 0); err != nil {
			return fmt.Errorf("s3blob: archive checkpoint %s: %w", key, err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive checkpoint %s: %w", key, err)
	}
	return nil
}

// key builds the object key for a checkpoint:
//
//	checkpoints/2025/06/01/1748736000-1689245310034-7.json
func (a *CheckpointArchiver) key(cp domain.Checkpoint) string {
	cursor := cp.Cursor
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s/%s/%d-%s.json",
		a.prefix,
		cp.CreatedAt.UTC().Format("2006/01/02"),
		cp.CreatedAt.UTC().Unix(),
		cursor,
	)
}

var _ domain.CheckpointArchiver = (*CheckpointArchiver)(nil)
