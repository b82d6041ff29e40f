package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ocw-node/extrinsic"
	"ocw-node/indexing"
	"ocw-node/keystore"
	"ocw-node/ledger"
	"ocw-node/logger"
	"ocw-node/models"
	"ocw-node/repository"
	"ocw-node/txpool"
)

const defaultListLimit = 100

// LedgerReader exposes the consensus-visible values the API reports.
type LedgerReader interface {
	Price() (uint32, bool, error)
	Height() (models.BlockNumber, error)
	Events() []ledger.Event
}

// IndexReader reads the node-local index.
type IndexReader interface {
	GetRecord(key []byte) (*models.ReconciliationRecord, error)
	ListRecords(limit int) ([]repository.IndexedRecord, error)
}

// IdentityLister enumerates the local signing identities.
type IdentityLister interface {
	Identities() []models.AccountID
}

// CallSubmitter signs a call with one local identity and queues it.
type CallSubmitter interface {
	SubmitAs(id models.AccountID, call extrinsic.Call) (*extrinsic.Envelope, error)
}

// Handler contains the HTTP handlers for the diagnostics API
type Handler struct {
	Ledger    LedgerReader
	Index     IndexReader
	Keys      IdentityLister
	Submitter CallSubmitter
}

// NewHandler creates and returns a new Handler instance
func NewHandler(l LedgerReader, idx IndexReader, keys IdentityLister, sub CallSubmitter) *Handler {
	return &Handler{Ledger: l, Index: idx, Keys: keys, Submitter: sub}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetPrice handles GET requests for the ledger price cell
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, ok, err := h.Ledger.Price()
	if err != nil {
		logger.Logger.Error("Failed to read price", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	height, err := h.Ledger.Height()
	if err != nil {
		logger.Logger.Error("Failed to read height", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "price has not been set")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"price_usd": price,
		"height":    height,
	})
}

// GetIndexRecord handles GET requests for the record stored at one height
func (h *Handler) GetIndexRecord(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["height"]
	height, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid height")
		return
	}

	rec, err := h.Index.GetRecord(indexing.DeriveKey(models.BlockNumber(height)))
	if errors.Is(err, repository.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Logger.Error("Failed to read index record", zap.Uint64("height", height), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height": height,
		"tag":    string(rec.Tag),
		"value":  rec.Value,
	})
}

// ListIndexRecords handles GET requests for the stored records
func (h *Handler) ListIndexRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.Index.ListRecords(limit)
	if err != nil {
		logger.Logger.Error("Failed to list index records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]interface{}{
			"height": rec.Height,
			"tag":    string(rec.Record.Tag),
			"value":  rec.Record.Value,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": out})
}

// GetIdentities lists the public keys this node signs with
func (h *Handler) GetIdentities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identities": h.Keys.Identities(),
	})
}

// GetEvents handles GET requests for the events of the last applied block
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	height, err := h.Ledger.Height()
	if err != nil {
		logger.Logger.Error("Failed to read height", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height": height,
		"events": h.Ledger.Events(),
	})
}

type submitRequest struct {
	// Identity defaults to the first local identity.
	Identity string `json:"identity"`
	Call     string `json:"call"`
	Value    uint64 `json:"value"`
}

// SubmitExtrinsic handles POST requests that sign a call with a local
// identity and queue it for the next block
func (h *Handler) SubmitExtrinsic(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	call, err := extrinsic.ParseCall(req.Call, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var id models.AccountID
	if req.Identity == "" {
		ids := h.Keys.Identities()
		if len(ids) == 0 {
			writeError(w, http.StatusConflict, "no local identity configured")
			return
		}
		id = ids[0]
	} else if id, err = models.ParseAccountID(req.Identity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := h.Submitter.SubmitAs(id, call)
	if err != nil {
		status := submitStatus(err)
		if status == http.StatusInternalServerError {
			logger.Logger.Error("Failed to submit extrinsic", zap.String("call", call.Name()), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     env.ID,
		"signer": env.Signer,
		"call":   call.Name(),
	})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, keystore.ErrUnknownIdentity), errors.Is(err, txpool.ErrRevoked):
		return http.StatusForbidden
	case errors.Is(err, txpool.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, txpool.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, txpool.ErrPoolFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
