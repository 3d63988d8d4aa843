package form

import (
	"sync"

	"github.com/invopop/jsonschema"
)

var formSchema = sync.OnceValue(func() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Form{})
	s.Title = "Parsed Google Form"
	return s
})

// Schema returns the JSON schema of the Form document.
func Schema() *jsonschema.Schema {
	return formSchema()
}
