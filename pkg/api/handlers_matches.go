package api

import (
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/pattern"
)

type matchJSON struct {
	TransactionID string     `json:"transaction_id"`
	OutputIndex   uint32     `json:"output_index"`
	Address       string     `json:"address"`
	Value         string     `json:"value"` // hex-encoded CBOR
	DatumHash     *string    `json:"datum_hash"`
	ScriptHash    *string    `json:"script_hash"`
	CreatedAt     pointJSON  `json:"created_at"`
	SpentAt       *spentJSON `json:"spent_at"`
}

type pointJSON struct {
	SlotNo     uint64 `json:"slot_no"`
	HeaderHash string `json:"header_hash"`
}

type spentJSON struct {
	SlotNo        uint64 `json:"slot_no"`
	HeaderHash    string `json:"header_hash"`
	TransactionID string `json:"transaction_id"`
}

// matchFilter narrows streamed matches beyond the pattern itself.
type matchFilter struct {
	policyID      string
	assetName     string
	transactionID string
	outputIndex   *uint32
}

// parseMatchQuery extracts the status flag, sort direction and narrowing
// filter from query parameters.
func parseMatchQuery(query url.Values) (database.StatusFlag, database.SortDirection, *matchFilter, *apiError) {
	status := database.StatusAll
	_, spent := query["spent"]
	_, unspent := query["unspent"]
	switch {
	case spent && unspent:
		return 0, 0, nil, badRequest("invalidStatusFlag", "spent and unspent are mutually exclusive")
	case spent:
		status = database.StatusSpent
	case unspent:
		status = database.StatusUnspent
	}

	sort := database.SortDesc
	if v := query.Get("order"); v != "" {
		switch v {
		case "asc", "oldest_first":
			sort = database.SortAsc
		case "desc", "most_recent_first":
		default:
			return 0, 0, nil, badRequest("invalidSortDirection", "order must be asc or desc")
		}
	}

	filter := &matchFilter{
		policyID:      query.Get("policy_id"),
		assetName:     query.Get("asset_name"),
		transactionID: query.Get("transaction_id"),
	}
	if v := query.Get("output_index"); v != "" {
		ix, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, 0, nil, badRequest("invalidMatchFilter", "output_index must be a non-negative integer")
		}
		u := uint32(ix)
		filter.outputIndex = &u
	}
	if filter.assetName != "" && filter.policyID == "" {
		return 0, 0, nil, badRequest("invalidMatchFilter", "asset_name requires policy_id")
	}
	if filter.outputIndex != nil && filter.transactionID == "" {
		return 0, 0, nil, badRequest("invalidMatchFilter", "output_index requires transaction_id")
	}
	if filter.policyID == "" && filter.transactionID == "" {
		filter = nil
	}
	return status, sort, filter, nil
}

// accept applies the narrowing filter to one row, looking assets up inside
// the row's own transaction.
func (f *matchFilter) accept(tx *database.Tx, row database.InputRow) (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.transactionID != "" {
		if row.TransactionID != f.transactionID {
			return false, nil
		}
		if f.outputIndex != nil && row.OutputIndex != *f.outputIndex {
			return false, nil
		}
	}
	if f.policyID != "" {
		assets, err := tx.AssetsOf(row.OutputReference)
		if err != nil {
			return false, err
		}
		found := false
		for _, a := range assets {
			if a.PolicyID != f.policyID {
				continue
			}
			if f.assetName == "" || a.AssetName == f.assetName {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// handleGetMatches streams every stored input selected by the path pattern
// and query narrowing. An empty path pattern means "*".
func (s *Server) handleGetMatches(w http.ResponseWriter, r *http.Request, patternText string) {
	if patternText == "" {
		patternText = "*"
	}
	p, err := pattern.Parse(patternText)
	if err != nil {
		writeError(w, badRequest("invalidPattern", err.Error()))
		return
	}

	status, sort, filter, apiErr := parseMatchQuery(r.URL.Query())
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	out := newStream(w)
	dbErr := s.db.ReadOnly(r.Context(), func(tx *database.Tx) error {
		return tx.ForEachMatch(p, status, sort, func(row database.InputRow) error {
			ok, err := filter.accept(tx, row)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			return out.Yield(toMatchJSON(row))
		})
	})
	if dbErr != nil {
		if !out.Started() {
			writeError(w, dbErr)
		}
		return
	}
	out.Done()
}

// handleDeleteMatches deletes stored matches, refusing while the pattern
// overlaps any registered one.
func (s *Server) handleDeleteMatches(w http.ResponseWriter, r *http.Request, patternText string) {
	p, err := pattern.Parse(patternText)
	if err != nil {
		writeError(w, badRequest("invalidPattern", err.Error()))
		return
	}

	if p.Overlaps(s.registry.Snapshot()) {
		writeError(w, badRequest("stillActivePattern",
			"the pattern overlaps a registered pattern; remove the pattern first"))
		return
	}

	var deleted int64
	err = s.db.ReadWrite(r.Context(), func(tx *database.Tx) error {
		var err error
		deleted, err = tx.DeleteMatches(p)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func toMatchJSON(row database.InputRow) matchJSON {
	m := matchJSON{
		TransactionID: row.TransactionID,
		OutputIndex:   row.OutputIndex,
		Address:       row.Address,
		Value:         hex.EncodeToString(row.Value),
		DatumHash:     row.DatumHash,
		ScriptHash:    row.ScriptHash,
		CreatedAt: pointJSON{
			SlotNo:     row.CreatedAtSlot,
			HeaderHash: row.CreatedAtHeaderHash,
		},
	}
	if row.SpentAtSlot != nil {
		m.SpentAt = &spentJSON{
			SlotNo: *row.SpentAtSlot,
		}
		if row.SpentAtHeaderHash != nil {
			m.SpentAt.HeaderHash = *row.SpentAtHeaderHash
		}
		if row.SpentAtTransactionID != nil {
			m.SpentAt.TransactionID = *row.SpentAtTransactionID
		}
	}
	return m
}
