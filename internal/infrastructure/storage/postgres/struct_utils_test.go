package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aqualist/internal/core/entity"
	"aqualist/internal/core/id"
)

type mockEntity struct {
	entity.BaseEntity
	Title  string `db:"title" json:"title"`
	Status string `db:"status" json:"status"`
	Secret string `db:"-" json:"-"`
	NoTag  string
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[mockEntity]()

	expectedCols := []string{"id", "version", "created_at", "updated_at", "title", "status"}
	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
	assert.NotContains(t, cols, "-")
	assert.Len(t, cols, len(expectedCols))
}

func TestStructToMap_Embedded(t *testing.T) {
	now := time.Now().UTC()
	e := mockEntity{
		BaseEntity: entity.BaseEntity{
			ID:        id.New(),
			Version:   5,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Title:  "Pair of clown plecos",
		Status: "active",
		Secret: "never-persisted",
	}

	m := StructToMap(e)

	assert.Equal(t, e.ID, m["id"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "Pair of clown plecos", m["title"])
	assert.Equal(t, "active", m["status"])
	assert.NotContains(t, m, "-")
	assert.NotContains(t, m, "Secret")
	assert.NotContains(t, m, "NoTag")
}
