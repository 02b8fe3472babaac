package service

import "github.com/noah-isme/sma-announcement-api/internal/models"

// ViewerKind tags the role a viewer acts with.
type ViewerKind int

const (
	ViewerStudent ViewerKind = iota
	ViewerTeacher
	ViewerAdmin
)

// Viewer is the identity visibility decisions are made for. BatchID is only
// carried by students and is nil when the student is not assigned to a batch.
type Viewer struct {
	Kind    ViewerKind
	ID      string
	BatchID *string
}

// AdminViewer builds an administrator viewer.
func AdminViewer(id string) Viewer { return Viewer{Kind: ViewerAdmin, ID: id} }

// TeacherViewer builds a teacher viewer.
func TeacherViewer(id string) Viewer { return Viewer{Kind: ViewerTeacher, ID: id} }

// StudentViewer builds a student viewer scoped to their current batch.
func StudentViewer(id string, batchID *string) Viewer {
	return Viewer{Kind: ViewerStudent, ID: id, BatchID: batchID}
}

// CanView reports whether the announcement is visible to the viewer.
func (v Viewer) CanView(a *models.Announcement) bool {
	switch v.Kind {
	case ViewerAdmin:
		return true
	case ViewerTeacher:
		return a.IsPublished || a.CreatedByID == v.ID
	default:
		return a.IsPublished && v.inBatchScope(a)
	}
}

// CanMutate reports whether the viewer may update, delete or export the announcement.
func (v Viewer) CanMutate(a *models.Announcement) bool {
	switch v.Kind {
	case ViewerAdmin:
		return true
	case ViewerTeacher:
		return a.CreatedByID == v.ID
	default:
		return false
	}
}

// CanMarkRead reports whether the viewer may record a read receipt.
func (v Viewer) CanMarkRead(a *models.Announcement) bool {
	if !a.IsPublished {
		return false
	}
	if v.Kind == ViewerStudent {
		return v.inBatchScope(a)
	}
	return true
}

// ShowsReadCount reports whether read counts are exposed to the viewer.
func (v Viewer) ShowsReadCount() bool {
	return v.Kind == ViewerAdmin || v.Kind == ViewerTeacher
}

// Scope translates CanView into the store-level list filter.
func (v Viewer) Scope() models.AnnouncementScope {
	switch v.Kind {
	case ViewerAdmin:
		return models.AnnouncementScope{IncludeUnpublished: true}
	case ViewerTeacher:
		return models.AnnouncementScope{UnpublishedOwnerID: v.ID}
	default:
		return models.AnnouncementScope{RestrictToBatch: true, BatchID: v.BatchID}
	}
}

func (v Viewer) inBatchScope(a *models.Announcement) bool {
	if a.IsGlobal() {
		return true
	}
	return v.BatchID != nil && *v.BatchID == *a.BatchID
}
