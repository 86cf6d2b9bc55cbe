package codec

import (
	"encoding/xml"
	"fmt"

	"github.com/gemfony-scientific/gevabroker"
)

// xmlEnvelope mirrors envelope with the XML element itself named
// "classhierarchyFromT" per the wire protocol's xml-format requirement; the
// type tag is carried as an attribute on that element.
type xmlEnvelope struct {
	XMLName   xml.Name              `xml:"classhierarchyFromT"`
	Kind      string                `xml:"kind,attr"`
	Courtier  gevabroker.CourtierID `xml:"courtier"`
	Status    gevabroker.Status     `xml:"status"`
	Attempts  int                   `xml:"attempts"`
	ErrorText string                `xml:"errorText"`
	Results   []gevabroker.Result   `xml:"results>result"`
	Payload   []byte                `xml:"payload"`
}

func encodeXML(env envelope) ([]byte, error) {
	out, err := xml.Marshal(xmlEnvelope{
		Kind:      env.Kind,
		Courtier:  env.Courtier,
		Status:    env.Status,
		Attempts:  env.Attempts,
		ErrorText: env.ErrorText,
		Results:   env.Results,
		Payload:   env.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("codec: encode xml: %w", err)
	}
	return out, nil
}

func decodeXML(data []byte) (envelope, error) {
	var xe xmlEnvelope
	if err := xml.Unmarshal(data, &xe); err != nil {
		return envelope{}, fmt.Errorf("codec: decode xml: %w", err)
	}
	return envelope{
		Kind:      xe.Kind,
		Courtier:  xe.Courtier,
		Status:    xe.Status,
		Attempts:  xe.Attempts,
		ErrorText: xe.ErrorText,
		Results:   xe.Results,
		Payload:   xe.Payload,
	}, nil
}
