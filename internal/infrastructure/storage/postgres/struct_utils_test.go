package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

type mockCatalog struct {
	entity.BaseCatalog
	Name  string           `db:"name" json:"name"`
	Price types.MinorUnits `db:"price" json:"price"`

	Ignored string `db:"-" json:"ignored"`
	NoTag   string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[mockCatalog]()

	assert.Equal(t, []string{"id", "deletion_mark", "version", "name", "price"}, cols)
}

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	cols := ExtractDBColumns[mockCatalog]()

	assert.NotContains(t, cols, "-")
	assert.NotContains(t, cols, "Ignored")
	assert.NotContains(t, cols, "NoTag")
}

func TestStructToMap(t *testing.T) {
	unitID := id.New()
	cat := mockCatalog{
		BaseCatalog: entity.BaseCatalog{
			BaseEntity: entity.BaseEntity{
				ID:           unitID,
				DeletionMark: true,
				Version:      5,
			},
		},
		Name:    "Paracetamol 500mg",
		Price:   types.MinorUnits(1250),
		Ignored: "never stored",
	}

	m := StructToMap(cat)

	assert.Equal(t, unitID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "Paracetamol 500mg", m["name"])
	assert.Equal(t, types.MinorUnits(1250), m["price"])
	assert.NotContains(t, m, "-")
	assert.Len(t, m, 5)
}

func TestStructToMap_PointerInput(t *testing.T) {
	cat := &mockCatalog{Name: "Ibuprofen"}
	m := StructToMap(cat)
	assert.Equal(t, "Ibuprofen", m["name"])
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
