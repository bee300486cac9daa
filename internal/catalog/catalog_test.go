package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djorgosz2/car-card-game-server/internal/catalog"
	"github.com/djorgosz2/car-card-game-server/internal/models"
)

func TestLoad_FixtureCatalog(t *testing.T) {
	cat, err := catalog.Load("../../testdata/catalog.json")
	require.NoError(t, err)

	require.NotEmpty(t, cat.Cars())
	require.NotEmpty(t, cat.Actions())

	for _, car := range cat.Cars() {
		assert.NotEmpty(t, car.Rank, "car %s should have been ranked", car.ID)
	}

	def, ok := cat.ByID("action-nitro-boost")
	require.True(t, ok)
	assert.Equal(t, models.EffectTimeMod, def.Effect.Type)
}

func TestLoad_SkipsCarsWithZeroMetric(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	data := `{
		"cars": [
			{"id": "valid", "name": "Valid Car", "speed": 200, "hp": 300, "accel": 5, "weight": 1400, "year": 2000},
			{"id": "invalid", "name": "Missing Weight", "speed": 200, "hp": 300, "accel": 5, "weight": 0, "year": 2000}
		],
		"actions": []
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cat, err := catalog.Load(path)
	require.NoError(t, err)

	_, ok := cat.ByID("invalid")
	assert.False(t, ok)
	_, ok = cat.ByID("valid")
	assert.True(t, ok)
}

func TestLoad_RejectsActionMissingEffect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	data := `{"cars": [], "actions": [{"id": "broken", "name": "Broken"}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := catalog.Load(path)
	assert.Error(t, err)
}

func TestFromDefinitions_BypassesValidation(t *testing.T) {
	defs := []*models.CardDefinition{
		{ID: "c1", Kind: models.CardKindCar, Metrics: models.MetricVector{Speed: 100}},
	}
	cat := catalog.FromDefinitions(defs)

	def, ok := cat.ByID("c1")
	require.True(t, ok)
	assert.Empty(t, def.Rank, "FromDefinitions does not compute ranks")
}
