package storage

import (
	"encoding/json"

	"sitewatch/internal/models"
)

// wireRecord accepts both the canonical history record and the compact
// legacy form {t, s, c, r, m}.
type wireRecord struct {
	models.HistoryRecord
}

func (w *wireRecord) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp    *int64         `json:"timestamp"`
		Status       *models.Status `json:"status"`
		StatusCode   *int           `json:"statusCode"`
		ResponseTime *int64         `json:"responseTime"`
		Message      *string        `json:"message"`

		T *int64         `json:"t"`
		S *models.Status `json:"s"`
		C *int           `json:"c"`
		R *int64         `json:"r"`
		M *string        `json:"m"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rec := models.HistoryRecord{}
	rec.Timestamp = firstInt64(raw.Timestamp, raw.T)
	if s := firstStatus(raw.Status, raw.S); s != "" {
		rec.Status = s
	}
	if raw.StatusCode != nil {
		rec.StatusCode = *raw.StatusCode
	} else if raw.C != nil {
		rec.StatusCode = *raw.C
	}
	rec.ResponseTime = firstInt64(raw.ResponseTime, raw.R)
	if raw.Message != nil {
		rec.Message = *raw.Message
	} else if raw.M != nil {
		rec.Message = *raw.M
	}
	w.HistoryRecord = rec
	return nil
}

func firstInt64(a, b *int64) int64 {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return 0
}

func firstStatus(a, b *models.Status) models.Status {
	if a != nil && *a != "" {
		return *a
	}
	if b != nil {
		return *b
	}
	return ""
}

// stateDoc shadows MonitorState.History so history records pass through
// wireRecord; the shallower field wins during decoding.
type stateDoc struct {
	*models.MonitorState
	History map[string][]wireRecord `json:"history"`
}

// DecodeState parses a persisted state document, normalizing legacy history
// records into models.HistoryRecord.
func DecodeState(data []byte) (*models.MonitorState, error) {
	state := &models.MonitorState{}
	doc := stateDoc{MonitorState: state}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.History != nil {
		state.History = make(map[string][]models.HistoryRecord, len(doc.History))
		for id, recs := range doc.History {
			out := make([]models.HistoryRecord, len(recs))
			for i, r := range recs {
				out[i] = r.HistoryRecord
			}
			state.History[id] = out
		}
	}
	return state, nil
}
