package validate

import "github.com/backyonatan-alt/flightsnap/internal/model"

// Records reports whether v is a sequence of key-value records and returns it as a batch.
// An empty sequence is valid. A nil interface is not a sequence.
func Records(v any) (model.FlightBatch, bool) {
	switch s := v.(type) {
	case model.FlightBatch:
		return nonNil(s), true
	case []model.FlightRecord:
		return nonNil(s), true
	case []map[string]any:
		batch := make(model.FlightBatch, len(s))
		for i, r := range s {
			batch[i] = r
		}
		return batch, true
	case []any:
		batch := make(model.FlightBatch, 0, len(s))
		for _, elem := range s {
			switch r := elem.(type) {
			case map[string]any:
				batch = append(batch, r)
			case model.FlightRecord:
				batch = append(batch, r)
			default:
				return nil, false
			}
		}
		return batch, true
	}
	return nil, false
}

// IsRecordList is Records without the conversion.
func IsRecordList(v any) bool {
	_, ok := Records(v)
	return ok
}

func nonNil(b model.FlightBatch) model.FlightBatch {
	if b == nil {
		return model.FlightBatch{}
	}
	return b
}
