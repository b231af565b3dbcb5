package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/common"
)

type stubStore struct {
	entries []Entry
}

func (s *stubStore) InsertAuditLog(_ context.Context, e Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubStore) ListAuditLogs(_ context.Context, branchID string, limit, offset int) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.BranchID == branchID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestServiceRecord(t *testing.T) {
	store := &stubStore{}
	fixed := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	svc := Service{Store: store, Enabled: true, Now: func() time.Time { return fixed }}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/enrollments/e1/book-fee", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	req = req.WithContext(common.WithCashierID(req.Context(), "cashier-7"))

	err := svc.Record(req.Context(), SourceFromRequest(req), "north", "bookfee.adjust", "fee_item", "fee-1", map[string]string{"from": "500.00", "to": "450.00"})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	got := store.entries[0]
	require.Equal(t, ActorKindCashier, got.ActorKind)
	require.Equal(t, "cashier-7", got.ActorID)
	require.Equal(t, "north", got.BranchID)
	require.Equal(t, "req-123", got.RequestID)
	require.Equal(t, "10.0.0.2", got.IP)
	require.Equal(t, fixed, got.CreatedAt)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	require.Equal(t, "450.00", meta["to"])
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: false}
	require.NoError(t, svc.Record(context.Background(), Source{}, "b", "x", "y", "", nil))
	require.Empty(t, store.entries)
}

func TestServiceRecordSystemActor(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true}
	require.NoError(t, svc.Record(context.Background(), Source{}, "b", "settlement.reconcile", "settlement", "s1", nil))
	require.Equal(t, ActorKindSystem, store.entries[0].ActorKind)
	require.Nil(t, store.entries[0].Metadata)
}

func TestHandlerListScopesByBranch(t *testing.T) {
	store := &stubStore{entries: []Entry{{BranchID: "north", Action: "a"}, {BranchID: "south", Action: "b"}}}
	h := Handler{Store: store}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?limit=10", nil)
	req = req.WithContext(branch.With(req.Context(), "north"))
	rr := httptest.NewRecorder()
	h.List(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "a", body.Data[0].Action)
}
