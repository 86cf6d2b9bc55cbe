package codec

import (
	"encoding/json"
	"fmt"

	"github.com/gemfony-scientific/gevabroker"
)

// jsonEnvelope mirrors envelope with a top-level "classhierarchyFromT" key
// carrying the type tag, per the wire protocol's text-format requirement.
type jsonEnvelope struct {
	ClassHierarchyFromT string                `json:"classhierarchyFromT"`
	Courtier            gevabroker.CourtierID `json:"courtier"`
	Status              gevabroker.Status     `json:"status"`
	Attempts            int                   `json:"attempts"`
	ErrorText           string                `json:"errorText"`
	Results             []gevabroker.Result   `json:"results"`
	Payload             []byte                `json:"payload"`
}

func encodeJSON(env envelope) ([]byte, error) {
	return json.Marshal(jsonEnvelope{
		ClassHierarchyFromT: env.Kind,
		Courtier:            env.Courtier,
		Status:              env.Status,
		Attempts:            env.Attempts,
		ErrorText:           env.ErrorText,
		Results:             env.Results,
		Payload:             env.Payload,
	})
}

func decodeJSON(data []byte) (envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return envelope{}, fmt.Errorf("codec: decode json: %w", err)
	}
	return envelope{
		Kind:      je.ClassHierarchyFromT,
		Courtier:  je.Courtier,
		Status:    je.Status,
		Attempts:  je.Attempts,
		ErrorText: je.ErrorText,
		Results:   je.Results,
		Payload:   je.Payload,
	}, nil
}
