package duckstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/javajack/xlform"
	"github.com/javajack/xlform/store/duckstore"
	"github.com/javajack/xlform/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		s, err := duckstore.Open("")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "xlform.duckdb")

	s, err := duckstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateTemplate(ctx, &xlform.TemplateModel{
		ID:                   "t1",
		TemplateName:         "Scores",
		EmployeeFieldMapping: xlform.NewEmployeeFieldMapping(),
		IsActive:             true,
	}))
	require.NoError(t, s.Close())

	s, err = duckstore.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.FindTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Scores", got.TemplateName)
	assert.True(t, got.IsActive)
}
