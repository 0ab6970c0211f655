package api

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/database"
)

// handleGetHealth serves the aggregated health, content-negotiated between
// JSON and Prometheus text exposition.
func (s *Server) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	switch {
	case accept == "" || strings.Contains(accept, "application/json") || strings.Contains(accept, "*/*"):
		writeJSON(w, http.StatusOK, s.health.Snapshot())
	case strings.Contains(accept, "text/plain"):
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		s.health.WriteText(w)
	default:
		writeError(w, errUnsupportedContentType)
	}
}

type checkpointJSON struct {
	SlotNo     uint64 `json:"slot_no"`
	HeaderHash string `json:"header_hash"`
}

// handleGetCheckpoints streams every stored checkpoint, newest first.
func (s *Server) handleGetCheckpoints(w http.ResponseWriter, r *http.Request) {
	out := newStream(w)
	err := s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
		return tx.ForEachCheckpoint(func(c database.Checkpoint) error {
			return out.Yield(checkpointJSON{SlotNo: c.SlotNo, HeaderHash: c.HeaderHash})
		})
	})
	if err != nil {
		if !out.Started() {
			writeError(w, err)
		}
		return
	}
	out.Done()
}

// handleGetCheckpointBySlot returns the checkpoint at the slot (strict) or
// its closest ancestor, or null.
func (s *Server) handleGetCheckpointBySlot(w http.ResponseWriter, r *http.Request, slotText string) {
	slot, err := strconv.ParseUint(slotText, 10, 64)
	if err != nil {
		writeError(w, badRequest("invalidSlotNo", "the slot must be a non-negative integer"))
		return
	}

	strict := false
	if v := r.URL.Query().Get("strict"); v != "" {
		switch v {
		case "true":
			strict = true
		case "false":
		default:
			writeError(w, badRequest("invalidStrictMode", "strict must be true or false"))
			return
		}
	}

	var found *database.Checkpoint
	err = s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
		var err error
		if strict {
			found, err = tx.CheckpointAt(slot)
		} else {
			found, err = tx.CheckpointBefore(slot)
		}
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if found == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, checkpointJSON{SlotNo: found.SlotNo, HeaderHash: found.HeaderHash})
}

// handleGetDatum returns {"datum": <hex>} or null.
func (s *Server) handleGetDatum(w http.ResponseWriter, r *http.Request, hashText string) {
	hash, err := chain.ParseDatumHash(hashText)
	if err != nil {
		writeError(w, badRequest("malformedDatumHash", "the datum hash must be 64 hex digits"))
		return
	}

	var data []byte
	if err := s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
		var err error
		data, err = tx.BinaryData(hash)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}

	if data == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"datum": hex.EncodeToString(data)})
}

// handleGetScript returns {"language", "script"} or null.
func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request, hashText string) {
	hash, err := chain.ParseScriptHash(hashText)
	if err != nil {
		writeError(w, badRequest("malformedScriptHash", "the script hash must be 56 hex digits"))
		return
	}

	var script *chain.Script
	if err := s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
		var err error
		script, err = tx.Script(hash)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}

	if script == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"language": script.Language,
		"script":   hex.EncodeToString(script.Bytes),
	})
}

type metadataJSON struct {
	TransactionID string `json:"transaction_id"`
	Schema        string `json:"schema"` // hex-encoded CBOR
}

// handleGetMetadata fetches the block at the slot's closest ancestor from
// the producer and streams its transaction metadata.
func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request, slotText string) {
	slot, err := strconv.ParseUint(slotText, 10, 64)
	if err != nil {
		writeError(w, badRequest("invalidSlotNo", "the slot must be a non-negative integer"))
		return
	}

	var ancestor *database.Checkpoint
	if err := s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
		var err error
		ancestor, err = tx.CheckpointBefore(slot)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	if ancestor == nil {
		writeError(w, errNoAncestor)
		return
	}

	point, err := ancestor.Point()
	if err != nil {
		writeError(w, err)
		return
	}

	block, err := s.fetcher.FetchBlock(r.Context(), point)
	if err != nil {
		writeError(w, err)
		return
	}
	if block == nil {
		writeError(w, errNoAncestor)
		return
	}

	w.Header().Set("X-Block-Header-Hash", hex.EncodeToString(block.Point.HeaderHash[:]))
	out := newStream(w)
	for _, txn := range block.Transactions {
		if txn.Metadata == nil {
			continue
		}
		if err := out.Yield(metadataJSON{
			TransactionID: txn.ID.String(),
			Schema:        hex.EncodeToString(txn.Metadata),
		}); err != nil {
			return
		}
	}
	out.Done()
}
