// Package codec implements the neutral serialization trait used to move
// WorkItems across process boundaries: a shared envelope carrying the
// core-owned fields (courtier id, status, attempts, error text, results)
// plus an opaque, implementation-owned payload, in each of the three wire
// formats spec'd for the core: text (JSON), xml, and binary (gob with a
// leading version byte).
package codec

import (
	"fmt"

	"github.com/gemfony-scientific/gevabroker"
)

// Format selects the wire representation used to (de)serialize a WorkItem.
type Format int

const (
	// FormatText is the JSON-based wire format.
	FormatText Format = iota
	// FormatXML is the XML-based wire format.
	FormatXML
	// FormatBinary is the gob-based wire format, versioned by a leading byte.
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatXML:
		return "xml"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses the consumer.tcp.format configuration value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text":
		return FormatText, nil
	case "xml":
		return FormatXML, nil
	case "binary":
		return FormatBinary, nil
	default:
		return 0, fmt.Errorf("codec: unknown format %q", s)
	}
}

// Registerable is the additional contract a WorkItem implementation must
// satisfy to be transported by this package: a stable type tag (the wire
// envelope's "classhierarchyFromT" name) and opaque (de)marshaling of its
// own, implementation-specific fields. The core's shared fields (courtier
// id, status, attempts, error text, results) are handled by the envelope
// and never touch MarshalPayload/UnmarshalPayload.
type Registerable interface {
	gevabroker.WorkItem
	Kind() string
	MarshalPayload() ([]byte, error)
	UnmarshalPayload([]byte) error
}

// envelope is the format-agnostic shape carried by all three wire formats;
// each format's concrete struct (see json.go, xml.go, binary.go) embeds the
// same fields under format-appropriate tags.
type envelope struct {
	Kind      string
	Courtier  gevabroker.CourtierID
	Status    gevabroker.Status
	Attempts  int
	ErrorText string
	Results   []gevabroker.Result
	Payload   []byte
}

func toEnvelope(item Registerable) (envelope, error) {
	payload, err := item.MarshalPayload()
	if err != nil {
		return envelope{}, fmt.Errorf("codec: marshal payload: %w", err)
	}
	return envelope{
		Kind:      item.Kind(),
		Courtier:  item.CourtierID(),
		Status:    item.Status(),
		Attempts:  item.Attempts(),
		ErrorText: item.ErrorText(),
		Results:   item.Results(),
		Payload:   payload,
	}, nil
}

func fromEnvelope(env envelope, item Registerable) error {
	item.SetCourtierID(env.Courtier)
	item.SetStatus(env.Status)
	item.SetErrorText(env.ErrorText)
	item.SetResults(env.Results)
	for i := 0; i < env.Attempts; i++ {
		item.IncrementAttempts()
	}
	if err := item.UnmarshalPayload(env.Payload); err != nil {
		return fmt.Errorf("codec: unmarshal payload: %w", err)
	}
	return nil
}

// Factory constructs a zero-value Registerable for a given Kind tag, ready
// to receive UnmarshalPayload and the envelope's shared fields.
type Factory func() Registerable

// Registry maps a WorkItem's Kind tag to a Factory, so Decode can construct
// the right concrete type for an incoming wire payload without the core
// ever knowing about concrete WorkItem types.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates kind with factory. Registering the same kind twice
// overwrites the previous factory.
func (r *Registry) Register(kind string, factory Factory) {
	r.factories[kind] = factory
}

// Encode serializes item in the given format.
func (r *Registry) Encode(item Registerable, format Format) ([]byte, error) {
	env, err := toEnvelope(item)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatText:
		return encodeJSON(env)
	case FormatXML:
		return encodeXML(env)
	case FormatBinary:
		return encodeBinary(env)
	default:
		return nil, fmt.Errorf("codec: unsupported format %v", format)
	}
}

// Decode deserializes data in the given format, looking up the concrete
// WorkItem type via the envelope's Kind tag.
func (r *Registry) Decode(data []byte, format Format) (Registerable, error) {
	var (
		env envelope
		err error
	)
	switch format {
	case FormatText:
		env, err = decodeJSON(data)
	case FormatXML:
		env, err = decodeXML(data)
	case FormatBinary:
		env, err = decodeBinary(data)
	default:
		return nil, fmt.Errorf("codec: unsupported format %v", format)
	}
	if err != nil {
		return nil, err
	}

	factory, ok := r.factories[env.Kind]
	if !ok {
		return nil, fmt.Errorf("codec: no factory registered for kind %q", env.Kind)
	}
	item := factory()
	if err := fromEnvelope(env, item); err != nil {
		return nil, err
	}
	return item, nil
}
