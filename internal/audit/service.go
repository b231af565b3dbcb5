package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-sekolah/internal/common"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindCashier represents an authenticated fee counter operator.
	ActorKindCashier ActorKind = "cashier"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Entry is a single audit record.
type Entry struct {
	ID           int64           `json:"id"`
	BranchID     string          `json:"branchId"`
	ActorKind    ActorKind       `json:"actorKind"`
	ActorID      string          `json:"actorId,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	IP           string          `json:"ip,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store defines the persistence operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, e Entry) error
	ListAuditLogs(ctx context.Context, branchID string, limit, offset int) ([]Entry, error)
}

// Service persists audit logs for money-moving flows.
type Service struct {
	Store   Store
	Enabled bool
	Now     func() time.Time
}

// Source carries request-scoped attribution for an audit entry.
type Source struct {
	ActorID   string
	RequestID string
	IP        string
}

// SourceFromRequest extracts attribution from an inbound HTTP request.
func SourceFromRequest(r *http.Request) Source {
	if r == nil {
		return Source{}
	}
	cashier, _ := common.CashierID(r.Context())
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = strings.TrimSpace(r.Header.Get("X-Request-ID"))
	}
	return Source{ActorID: cashier, RequestID: reqID, IP: common.ClientIP(r)}
}

// Record persists an audit log entry when auditing is enabled.
func (s Service) Record(ctx context.Context, src Source, branchID, action, resourceType, resourceID string, metadata any) error {
	if !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("audit: action is required")
	}
	var raw json.RawMessage
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = data
	}
	kind := ActorKindSystem
	if strings.TrimSpace(src.ActorID) != "" {
		kind = ActorKindCashier
	} else if src.RequestID != "" {
		kind = ActorKindAnonymous
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Store.InsertAuditLog(ctx, Entry{
		BranchID:     branchID,
		ActorKind:    kind,
		ActorID:      strings.TrimSpace(src.ActorID),
		Action:       action,
		ResourceType: strings.TrimSpace(resourceType),
		ResourceID:   strings.TrimSpace(resourceID),
		RequestID:    src.RequestID,
		IP:           src.IP,
		Metadata:     raw,
		CreatedAt:    now().UTC(),
	})
}
