package action

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Options configure a kind registered with Define.
type Options[P Payload] struct {
	// Version defaults to 1.
	Version int
	// Topic defaults to TopicWorld.
	Topic Topic
	// Cached kinds keep their latest envelope per CacheKey for replay to
	// late subscribers.
	Cached   bool
	CacheKey func(P) string
	// Validators run in order; the first failure rejects the payload.
	Validators []func(P) error
}

// Definition is the registered contract of one action kind.
type Definition struct {
	kind        Kind
	version     int
	topic       Topic
	cached      bool
	payloadType reflect.Type

	validate func(Payload) error
	cacheKey func(Payload) string
	decode   func(unmarshal func(any) error) (Payload, error)
}

// Define registers the payload type P in the catalog.
func Define[P Payload](catalog *Catalog, opts Options[P]) (*Definition, error) {
	if catalog == nil {
		return nil, errors.New("action: nil catalog")
	}
	var zero P
	kind := zero.ActionKind()
	if kind == "" {
		return nil, fmt.Errorf("action: %T has an empty kind", zero)
	}
	version := opts.Version
	if version == 0 {
		version = 1
	}
	if version < 0 {
		return nil, fmt.Errorf("action %q: invalid version %d", kind, version)
	}
	topic := opts.Topic
	if topic == "" {
		topic = TopicWorld
	}
	if topic != TopicWorld && topic != TopicLocal {
		return nil, fmt.Errorf("action %q: unknown topic %q", kind, topic)
	}
	if opts.Cached && opts.CacheKey == nil {
		return nil, fmt.Errorf("action %q: cached kinds need a cache key", kind)
	}

	validators := append([]func(P) error(nil), opts.Validators...)
	def := &Definition{
		kind:        kind,
		version:     version,
		topic:       topic,
		cached:      opts.Cached,
		payloadType: reflect.TypeOf(zero),
	}
	def.validate = func(p Payload) error {
		typed, ok := p.(P)
		if !ok {
			return &SchemaError{Kind: kind, Reason: fmt.Sprintf("payload type %T, want %T", p, zero)}
		}
		for _, validator := range validators {
			if err := validator(typed); err != nil {
				return asSchemaError(kind, err)
			}
		}
		return nil
	}
	if opts.Cached {
		key := opts.CacheKey
		def.cacheKey = func(p Payload) string {
			return key(p.(P))
		}
	}
	def.decode = func(unmarshal func(any) error) (Payload, error) {
		var p P
		if err := unmarshal(&p); err != nil {
			return nil, &SchemaError{Kind: kind, Reason: fmt.Sprintf("decode: %v", err)}
		}
		return p, nil
	}

	if err := catalog.register(def); err != nil {
		return nil, err
	}
	return def, nil
}

// MustDefine is Define for package-level registration.
func MustDefine[P Payload](catalog *Catalog, opts Options[P]) *Definition {
	def, err := Define(catalog, opts)
	if err != nil {
		panic(err)
	}
	return def
}

func asSchemaError(kind Kind, err error) error {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		out := *schemaErr
		out.Kind = kind
		return &out
	}
	return &SchemaError{Kind: kind, Reason: err.Error()}
}

func (d *Definition) Kind() Kind { return d.kind }

func (d *Definition) Version() int { return d.version }

func (d *Definition) Topic() Topic { return d.topic }

func (d *Definition) Cached() bool { return d.cached }

// Validate checks the payload type and runs the registered validators.
func (d *Definition) Validate(p Payload) error {
	return d.validate(p)
}

// CacheKey returns the retention key of a cached payload.
func (d *Definition) CacheKey(p Payload) string {
	if d.cacheKey == nil {
		return ""
	}
	return d.cacheKey(p)
}

// Decode builds a payload of this kind using unmarshal, which receives a
// pointer to the zero payload value.
func (d *Definition) Decode(unmarshal func(any) error) (Payload, error) {
	return d.decode(unmarshal)
}

// Schema reflects the JSON schema of the payload type.
func (d *Definition) Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.ReflectFromType(d.payloadType)
	schema.Version = ""
	schema.Title = string(d.kind)
	schema.Description = fmt.Sprintf("version %d, topic %s", d.version, d.topic)
	return schema
}
