package program

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	cerrors "github.com/c360/blockflow/errors"
)

//go:embed program.schema.json
var documentSchema []byte

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(documentSchema))
})

// ValidateDocument checks raw JSON against the program document schema
// before it is decoded
func ValidateDocument(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return cerrors.WrapFatal(err, "program", "ValidateDocument", "load schema")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return cerrors.WrapInvalid(fmt.Errorf("%v: %w", err, cerrors.ErrParsingFailed), "program", "ValidateDocument", "parse document")
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	for i, desc := range result.Errors() {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", desc.Field(), desc.Description())
	}
	return cerrors.WrapInvalid(fmt.Errorf("%s: %w", b.String(), cerrors.ErrInvalidData), "program", "ValidateDocument", "schema check")
}
