package programstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/testutil"
)

func TestDocument_Validate(t *testing.T) {
	valid := func() *Document {
		return &Document{ID: "line-follower", Name: "Line follower", Program: json.RawMessage(testutil.SampleDocument)}
	}

	tests := []struct {
		name    string
		mutate  func(*Document)
		wantErr bool
	}{
		{"valid", func(*Document) {}, false},
		{"nested key", func(d *Document) { d.ID = "class.a/robot_1" }, false},
		{"empty id", func(d *Document) { d.ID = "" }, true},
		{"space in id", func(d *Document) { d.ID = "line follower" }, true},
		{"wildcard in id", func(d *Document) { d.ID = "robot.*" }, true},
		{"trailing dot", func(d *Document) { d.ID = "robot." }, true},
		{"blank name", func(d *Document) { d.Name = "  " }, true},
		{"no program", func(d *Document) { d.Program = nil }, true},
		{"program fails schema", func(d *Document) { d.Program = json.RawMessage(`{"version":1}`) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := valid()
			tt.mutate(doc)

			err := doc.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, cerrors.IsInvalid(err), "validation errors are invalid-class: %v", err)
		})
	}
}

func TestNewDocument_Load(t *testing.T) {
	prog := testutil.LinearProgram(t, "one", "two")

	doc, err := NewDocument("linear", "Linear", prog)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	loaded, err := doc.Load()
	require.NoError(t, err)
	assert.Equal(t, prog.Len(), loaded.Len())
	assert.Len(t, loaded.TopActions(), 1)
}

func TestDocument_LoadInvalid(t *testing.T) {
	doc := &Document{ID: "broken", Name: "Broken", Program: json.RawMessage(`{"blocks":"nope"}`)}

	_, err := doc.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
