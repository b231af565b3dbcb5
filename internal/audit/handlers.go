package audit

import (
	"net/http"

	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/common"
)

// Handler exposes HTTP endpoints for working with audit logs.
type Handler struct {
	Store Store
}

// List returns a paginated list of the branch's audit logs.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	branchID, _ := branch.From(r.Context())
	page := common.ParsePage(r, 50, 200)
	rows, err := h.Store.ListAuditLogs(r.Context(), branchID, page.Size, page.Offset())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	if rows == nil {
		rows = []Entry{}
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": page.Meta(len(rows)),
	})
}
