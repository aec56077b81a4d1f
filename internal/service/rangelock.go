package service

import (
	"github.com/spec-kit/recitation-service/internal/domain"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// The recitation range is writable only while the ticket is pending; start
// locks it for the life of the session and only reassignment unlocks it.

func lockRangeOnStart(ticket *domain.TicketRecord, ayahRange *domain.AyahRange) error {
	if err := assertRangeMutable(ticket); err != nil {
		return err
	}
	if !ayahRange.Valid() {
		return apperrors.NewValidationError("invalid ayah range", map[string]any{
			"from_surah": ayahRange.FromSurah,
			"to_surah":   ayahRange.ToSurah,
		})
	}
	ticket.AyahRange = ayahRange
	ticket.RangeLocked = true
	return nil
}

func assertRangeMutable(ticket *domain.TicketRecord) error {
	if ticket.RangeLocked {
		return apperrors.NewLocked("ayah range is locked for this session", nil)
	}
	return nil
}

func clearRangeOnReassign(ticket *domain.TicketRecord) {
	ticket.AyahRange = nil
	ticket.RangeLocked = false
}
