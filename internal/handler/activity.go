package handler

import (
	"time"

	"github.com/zjrosen/regd/internal/dataaccess"
)

// ActivityRecorder accepts activity records for persistence.
type ActivityRecorder interface {
	Write(rec dataaccess.LogRecord) bool
}

// ActivityLogHandler records every write operation it sees in the
// activity log. It never completes a request.
type ActivityLogHandler struct {
	recorder ActivityRecorder
	now      func() time.Time
}

// NewActivityLogHandler creates the handler. A nil recorder records
// nothing.
func NewActivityLogHandler(r ActivityRecorder) *ActivityLogHandler {
	return &ActivityLogHandler{recorder: r, now: time.Now}
}

// Name identifies the handler in listings.
func (h *ActivityLogHandler) Name() string {
	return KeyActivityLogHandler
}

// Handle implements Handler.
func (h *ActivityLogHandler) Handle(rc *RequestContext) error {
	if h.recorder == nil {
		return nil
	}
	action, ok := dataaccess.ActionForMethod(rc.Method)
	if !ok {
		return nil
	}
	rec := dataaccess.LogRecord{
		Path:       rc.Path,
		UserID:     rc.User,
		LoggedTime: h.now(),
		Action:     action,
		TenantID:   rc.TenantID,
	}
	switch action {
	case dataaccess.ActionCopy, dataaccess.ActionMove, dataaccess.ActionRename,
		dataaccess.ActionAddAssociation, dataaccess.ActionRemoveAssociation:
		rec.Path = rc.SourcePath
		rec.ActionData = rc.TargetPath
	case dataaccess.ActionInvokeAspect:
		rec.ActionData = rc.Action
	case dataaccess.ActionRestoreVersion:
		rec.ActionData = rc.VersionPath
	}
	h.recorder.Write(rec)
	return nil
}
