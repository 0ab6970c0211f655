package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/consumer"
	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/pattern"
)

// handleGetPatterns lists registered patterns, optionally narrowed to
// those included by the path pattern.
func (s *Server) handleGetPatterns(w http.ResponseWriter, r *http.Request, patternText string) {
	snapshot := s.registry.Snapshot()

	var scope *pattern.Pattern
	if patternText != "" {
		p, err := pattern.Parse(patternText)
		if err != nil {
			writeError(w, badRequest("invalidPattern", err.Error()))
			return
		}
		scope = &p
	}

	out := newStream(w)
	for _, p := range snapshot {
		if scope != nil && !scope.Includes(p) {
			continue
		}
		if err := out.Yield(p.String()); err != nil {
			return
		}
	}
	out.Done()
}

// putPatternRequest is the body of PUT /patterns/{p}. Since is either a
// full point ("<slot>.<hash>" or {slot_no, header_hash}), "origin", or a
// bare slot number resolved against known checkpoints.
type putPatternRequest struct {
	Since json.RawMessage `json:"since"`
	Limit string          `json:"limit"`
}

// handlePutPattern inserts a pattern after rolling the index back to the
// requested point, so history from that point is replayed against the new
// pattern. Points outside known checkpoints are accepted optimistically
// within the rollback horizon ("trust the client"); beyond the horizon the
// request must carry limit=any.
func (s *Server) handlePutPattern(w http.ResponseWriter, r *http.Request, patternText string) {
	p, err := pattern.Parse(patternText)
	if err != nil {
		writeError(w, badRequest("invalidPattern", err.Error()))
		return
	}

	var body putPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, badRequest("malformedRequest", "expected a JSON body with since and limit"))
		return
	}

	allowUnsafe := false
	switch body.Limit {
	case "", "within_safe_zone":
	case "any":
		allowUnsafe = true
	default:
		writeError(w, badRequest("malformedRequest", "limit must be within_safe_zone or any"))
		return
	}

	since, apiErr := s.resolveSince(r, body.Since)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	// The forced-rollback handoff: the consumer is the sole fulfiller
	// and replies exactly once.
	if err := s.consumer.RequestRollback(r.Context(), since, allowUnsafe); err != nil {
		if err == consumer.ErrBeyondSafeZone {
			writeError(w, badRequest("unsafeRollbackBeyondSafeZone",
				"the point is older than the longest rollback; pass limit=any to proceed anyway"))
			return
		}
		writeError(w, badRequest("failedToRollback", err.Error()))
		return
	}

	err = s.db.ReadWrite(r.Context(), func(tx *database.Tx) error {
		return tx.InsertPattern(p)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.registry.Add(p)

	patterns := s.registry.Snapshot()
	texts := make([]string, len(patterns))
	for i, q := range patterns {
		texts[i] = q.String()
	}
	writeJSON(w, http.StatusOK, texts)
}

// resolveSince interprets the since field: a full point is taken as given
// (optimistic pre-history is legitimate), a bare slot must resolve to a
// known checkpoint.
func (s *Server) resolveSince(r *http.Request, raw json.RawMessage) (chain.Point, *apiError) {
	if raw == nil {
		return chain.Point{}, badRequest("malformedPoint", "the request must name a since point")
	}

	// String form: "origin" or "<slot>.<hash>".
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		point, err := chain.ParsePoint(text)
		if err != nil {
			return chain.Point{}, badRequest("malformedPoint", err.Error())
		}
		return point, nil
	}

	// Bare slot: resolved against known checkpoints.
	var slot uint64
	if err := json.Unmarshal(raw, &slot); err == nil {
		var found *database.Checkpoint
		dbErr := s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
			var err error
			found, err = tx.CheckpointBefore(slot)
			return err
		})
		if dbErr != nil || found == nil {
			return chain.Point{}, badRequest("nonExistingPoint",
				"no known checkpoint at or before this slot; provide a full point instead")
		}
		point, err := found.Point()
		if err != nil {
			return chain.Point{}, badRequest("nonExistingPoint", err.Error())
		}
		return point, nil
	}

	// Object form: {slot_no, header_hash}.
	var point chain.Point
	if err := json.Unmarshal(raw, &point); err != nil {
		return chain.Point{}, badRequest("malformedPoint",
			"since must be \"origin\", \"<slot>.<hash>\", a slot number, or {slot_no, header_hash}")
	}
	return point, nil
}

// handleDeletePattern removes every registered pattern included by the
// path pattern. Indexed data stays until garbage collection or an explicit
// DELETE /matches.
func (s *Server) handleDeletePattern(w http.ResponseWriter, r *http.Request, patternText string) {
	p, err := pattern.Parse(patternText)
	if err != nil {
		writeError(w, badRequest("invalidPattern", err.Error()))
		return
	}

	removed := s.registry.Remove(p)
	err = s.db.ReadWrite(r.Context(), func(tx *database.Tx) error {
		for _, q := range removed {
			if _, err := tx.DeletePattern(q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(removed)})
}
