package catalog

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// BuildSchema describes the JSON catalog format accepted by FileSource.
func BuildSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	entry := reflector.ReflectFromType(reflect.TypeOf(Template{}))
	if entry == nil {
		return nil, fmt.Errorf("failed to reflect template schema")
	}
	entry.Version = ""
	entry.Title = "Creature Template"
	entry.Description = "One creature kind the spawner can place near players."

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Pokecat Catalog",
		Description: "Creature templates loaded at startup and on reload.",
		Type:        "array",
		Items:       entry,
	}, nil
}
