package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/common"
	"github.com/noah-isme/backend-sekolah/internal/obs"
)

// TokenParser turns a bearer token into a cashier.
type TokenParser interface {
	Parse(token string) (Cashier, error)
}

// Middleware authenticates counter devices.
type Middleware struct {
	Parser TokenParser
}

// RequireCashier rejects requests without a valid cashier token and stores
// the cashier id on the context. A token bound to a branch is only accepted
// at that branch.
func (m Middleware) RequireCashier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Parser == nil {
			common.JSONError(w, http.StatusInternalServerError, "AUTH_NOT_CONFIGURED", "authentication unavailable", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		cashier, err := m.Parser.Parse(token)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				common.WriteError(w, appErr)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		if cashier.BranchID != "" {
			if current, ok := branch.From(r.Context()); ok && current != cashier.BranchID {
				common.JSONError(w, http.StatusForbidden, "BRANCH_MISMATCH", "token is not valid for this branch", nil)
				return
			}
		}
		ctx := common.WithCashierID(r.Context(), cashier.ID)
		obs.Tag(ctx, "cashier_id", cashier.ID)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("cashier_id", cashier.ID)
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
