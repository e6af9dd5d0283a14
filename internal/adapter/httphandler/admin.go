package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

type AdminHandler struct {
	syncer   port.SyncRunner
	status   port.SyncStatusReader
	purger   port.LogsPurger
	resetter port.UserDataResetter
}

func RegisterAdmin(
	mux *http.ServeMux,
	verifier port.IdentityVerifier,
	syncer port.SyncRunner,
	status port.SyncStatusReader,
	purger port.LogsPurger,
	resetter port.UserDataResetter,
) {
	h := AdminHandler{syncer, status, purger, resetter}
	admin := func(hf http.HandlerFunc) http.Handler {
		return Authenticate(verifier, RequireAdmin(hf))
	}

	mux.Handle("POST /v1/sync", admin(h.PostSync))
	mux.Handle("GET /v1/sync/status", admin(h.GetSyncStatus))
	mux.Handle("DELETE /v1/logs", admin(h.DeleteLogs))
	mux.Handle("DELETE /v1/users/{userID}/data",
		Authenticate(verifier, http.HandlerFunc(h.DeleteUserData)))
}

// PostSync outlives a disconnected caller: other triggers may have joined
// the run.
func (h AdminHandler) PostSync(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.PostSync"
	log := slog.With("op", op, "requestID", RequestIDFrom(r.Context()))

	res := h.syncer.RunSync(context.WithoutCancel(r.Context()))
	if !res.Success {
		log.Warn("sync failed", "runID", res.RunID, "reason", res.Error)
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h AdminHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.GetSyncStatus"
	log := slog.With("op", op, "requestID", RequestIDFrom(r.Context()))

	s, err := h.status.Status(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "catalog was never synced")
			return
		}
		log.Error("failed to read sync status", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{
		LastSync:     s.LastSync,
		ProductCount: s.ProductCount,
	})
}

func (h AdminHandler) DeleteLogs(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.DeleteLogs"
	log := slog.With("op", op, "requestID", RequestIDFrom(r.Context()))

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from and to must be RFC 3339 timestamps")
		return
	}

	report, err := h.purger.PurgeLogs(r.Context(), window)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "invalid time window")
			return
		}
		log.Error("failed to purge logs", "err", err, "deleted", report.Deleted)
		writeError(w, http.StatusInternalServerError, "failed to purge logs")
		return
	}

	log.Info("logs purged", "deleted", report.Deleted)
	writeJSON(w, http.StatusOK, purgeResponse{Report: report})
}

func (h AdminHandler) DeleteUserData(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.DeleteUserData"
	log := slog.With("op", op, "requestID", RequestIDFrom(r.Context()))

	userID := r.PathValue("userID")
	id, _ := IdentityFrom(r.Context())
	if !id.CanReset(userID) {
		log.Warn("reset refused", "caller", id.UserID, "target", userID)
		writeError(w, http.StatusForbidden, "not allowed to reset this user")
		return
	}

	reports, err := h.resetter.ResetUserData(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "malformed user id")
			return
		}
		log.Error("failed to reset user data", "err", err, "userID", userID)
		writeError(w, http.StatusInternalServerError, "failed to reset user data")
		return
	}

	resp := resetResponse{UserID: userID, Reports: reports}
	for _, rep := range reports {
		resp.Deleted += rep.Deleted
	}
	log.Info("user data reset", "userID", userID, "deleted", resp.Deleted)
	writeJSON(w, http.StatusOK, resp)
}

func parseWindow(r *http.Request) (domain.TimeWindow, error) {
	var (
		w   domain.TimeWindow
		err error
	)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if w.From, err = time.Parse(time.RFC3339, v); err != nil {
			return domain.TimeWindow{}, err
		}
	}
	if v := q.Get("to"); v != "" {
		if w.To, err = time.Parse(time.RFC3339, v); err != nil {
			return domain.TimeWindow{}, err
		}
	}
	return w, nil
}
