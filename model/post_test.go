package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJsonHidesInternalFields(t *testing.T) {
	p := Post{Id: "internal", PostId: "M.1.A.2", Title: "hello"}

	b, err := json.Marshal(p)
	require.Nil(t, err)

	var decoded map[string]interface{}
	require.Nil(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "M.1.A.2", decoded["postId"])
	_, hasId := decoded["Id"]
	assert.False(t, hasId)
	_, hasVisibility := decoded["visibility"]
	assert.False(t, hasVisibility)

	p.Visibility = Bool(false)
	b, err = json.Marshal(p)
	require.Nil(t, err)
	require.Nil(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, false, decoded["visibility"])
}

func TestPostIsVisible(t *testing.T) {
	assert.True(t, (&Post{}).IsVisible())
	assert.True(t, (&Post{Visibility: Bool(true)}).IsVisible())
	assert.False(t, (&Post{Visibility: Bool(false)}).IsVisible())
}

func TestAdminColumnsDoesNotMutatePublicColumns(t *testing.T) {
	n := len(PublicColumns)
	cols := AdminColumns()
	assert.Equal(t, n+1, len(cols))
	assert.Equal(t, n, len(PublicColumns))
	assert.NotContains(t, PublicColumns, ColumnVisibility)
	assert.Contains(t, cols, ColumnVisibility)
}
