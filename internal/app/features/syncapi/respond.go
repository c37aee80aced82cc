// internal/app/features/syncapi/respond.go
package syncapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/grouphub/internal/app/services/syncgateway"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"go.uber.org/zap"
)

// VersionHeader echoes the version of a Snapshot or Empty answer.
const VersionHeader = "X-Resource-Version"

type snapshotBody struct {
	Version time.Time `json:"version"`
	Data    any       `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult maps a Result onto HTTP: 200 with the snapshot, 304 when the
// client is current, 204 when the resource is empty.
func writeResult[T any](w http.ResponseWriter, res syncgateway.Result[T]) {
	switch res.Outcome {
	case syncgateway.NotModified:
		w.WriteHeader(http.StatusNotModified)
	case syncgateway.Empty:
		w.Header().Set(VersionHeader, res.Version.Format(time.RFC3339Nano))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set(VersionHeader, res.Version.Format(time.RFC3339Nano))
		writeJSON(w, http.StatusOK, snapshotBody{Version: res.Version, Data: res.Data})
	}
}

var kindStatus = map[grouperr.Kind]int{
	grouperr.Validation:         http.StatusBadRequest,
	grouperr.Authorization:      http.StatusForbidden,
	grouperr.NotFound:           http.StatusNotFound,
	grouperr.AlreadyHandled:     http.StatusConflict,
	grouperr.Conflict:           http.StatusConflict,
	grouperr.AlreadyMember:      http.StatusConflict,
	grouperr.SuccessorNotMember: http.StatusUnprocessableEntity,
	grouperr.QuotaExceeded:      http.StatusUnprocessableEntity,
}

// writeError answers a classified error with its status and reason; any
// other error is logged and hidden behind a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := grouperr.As(err); ok {
		status, known := kindStatus[e.Kind]
		if !known {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorBody{Error: e.Kind.String(), Reason: e.Reason, Message: e.Msg})
		return
	}
	h.Log.Error("sync query failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
}

// pathID parses a positive int64 route parameter.
func pathID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidID, "invalid %s %q", name, raw)
	}
	return id, nil
}

// lastKnown parses the optional version query parameter. It accepts
// RFC 3339 timestamps and integer Unix milliseconds.
func lastKnown(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidVersion, "invalid version %q", raw)
	}
	return &t, nil
}
