// Package api exposes the ledger over JSON HTTP. Handlers decode and
// validate request bodies, resolve the actor from context, and delegate
// to the domain services; they hold no business rules of their own.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

const dateLayout = "2006-01-02"

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryIntDefault(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// parseAmount converts a decimal string into cents. The empty string means
// zero so optional debit or credit fields can be omitted.
func parseAmount(s string) (money.Cents, error) {
	if s == "" {
		return 0, nil
	}
	return money.Parse(s)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}
