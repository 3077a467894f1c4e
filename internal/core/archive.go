package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	blobcore "talentcore/internal/infra/blob/core"
)

// AuditExport is the scrubbed record written to the archive after anonymization.
type AuditExport struct {
	Application Application          `json:"application"`
	History     []StatusHistoryEntry `json:"history"`
	ExportedAt  time.Time            `json:"exported_at"`
}

// ArchiveKey returns the object key an application's export is stored under.
func ArchiveKey(applicationID string) string {
	return "audit/" + applicationID + ".json"
}

// exportAudit writes the export once. A failed export is logged and left for
// the next sweep; an existing object is treated as done.
func (s *Service) exportAudit(ctx context.Context, app Application, history []StatusHistoryEntry) {
	if s.archive == nil {
		return
	}
	if err := s.writeExport(ctx, AuditExport{Application: app, History: history, ExportedAt: s.clock.Now().UTC()}); err != nil {
		s.logger.Warn("audit export failed", zap.String("application_id", app.ID), zap.Error(err))
		return
	}
	s.logger.Debug("audit export written", zap.String("application_id", app.ID), zap.String("key", ArchiveKey(app.ID)))
}

func (s *Service) writeExport(ctx context.Context, export AuditExport) error {
	payload, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("encode audit export: %w", err)
	}
	_, err = s.archive.Put(ctx, ArchiveKey(export.Application.ID), bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"application_id": export.Application.ID,
			"status":         string(export.Application.Status),
		},
	})
	if errors.Is(err, blobcore.ErrExists) {
		return nil
	}
	return err
}
