package forecast

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/cbio-forecast/internal/features"
)

func smallSet(t *testing.T) *features.Set {
	t.Helper()
	ld := newFakeLoader(80)
	set, err := features.PrepareFeatures(ld.target, "Preco_CBIO", []int{1, 5})
	require.NoError(t, err)
	return set
}

func TestModel_PredictBeforeTrain(t *testing.T) {
	m := NewModel(testPipelineConfig().Model)
	assert.False(t, m.Fitted())

	_, err := m.Predict(smallSet(t), []string{"Lag_1", "Lag_5"})
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.ErrorIs(t, err, ErrModelNotTrained)
}

func TestModel_TrainErrors(t *testing.T) {
	m := NewModel(testPipelineConfig().Model)

	var modelErr *ModelError
	err := m.Train(&features.Set{Target: "Preco_CBIO", Columns: []string{"Lag_1"}}, []string{"Lag_1"})
	assert.ErrorAs(t, err, &modelErr)

	err = m.Train(smallSet(t), []string{"Lag_1", "Dolar"})
	assert.ErrorAs(t, err, &modelErr)
	assert.False(t, m.Fitted())
}

func TestModel_FeatureOrderMustMatch(t *testing.T) {
	set := smallSet(t)
	m := NewModel(testPipelineConfig().Model)
	require.NoError(t, m.Train(set, []string{"Lag_1", "Lag_5"}))
	assert.Equal(t, []string{"Lag_1", "Lag_5"}, m.Features())

	_, err := m.Predict(set, []string{"Lag_5", "Lag_1"})
	assert.ErrorIs(t, err, ErrFeatureMismatch)

	pred, err := m.Predict(set, []string{"Lag_1", "Lag_5"})
	require.NoError(t, err)
	assert.Len(t, pred, set.Len())
}

func TestArtifactStore_RoundTrip(t *testing.T) {
	set := smallSet(t)
	columns := []string{"Lag_1", "Lag_5"}
	m := NewModel(testPipelineConfig().Model)
	require.NoError(t, m.Train(set, columns))

	store := testStore(t)
	require.NoError(t, store.Save(m, columns, "run-1"))

	loaded, loadedColumns, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, columns, loadedColumns)

	want, err := m.Predict(set, columns)
	require.NoError(t, err)
	got, err := loaded.Predict(set, loadedColumns)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestArtifactStore_Missing(t *testing.T) {
	store := testStore(t)

	_, _, err := store.Load()
	assert.ErrorIs(t, err, ErrModelNotFound)

	// model present, feature list missing
	set := smallSet(t)
	m := NewModel(testPipelineConfig().Model)
	require.NoError(t, m.Train(set, []string{"Lag_1"}))
	require.NoError(t, store.Save(m, []string{"Lag_1"}, "run-1"))
	require.NoError(t, os.Remove(store.featuresPath))

	_, _, err = store.Load()
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestArtifactStore_TornPair(t *testing.T) {
	set := smallSet(t)
	store := testStore(t)

	first := NewModel(testPipelineConfig().Model)
	require.NoError(t, first.Train(set, []string{"Lag_1"}))
	require.NoError(t, store.Save(first, []string{"Lag_1"}, "run-1"))
	features1, err := os.ReadFile(store.featuresPath)
	require.NoError(t, err)

	second := NewModel(testPipelineConfig().Model)
	require.NoError(t, second.Train(set, []string{"Lag_1", "Lag_5"}))
	require.NoError(t, store.Save(second, []string{"Lag_1", "Lag_5"}, "run-2"))

	// simulate a crash after the model write of run-2 by restoring run-1's feature list
	require.NoError(t, os.WriteFile(store.featuresPath, features1, 0o644))

	_, _, err = store.Load()
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "load", modelErr.Op)
}

func TestArtifactStore_SaveUnfit(t *testing.T) {
	err := testStore(t).Save(NewModel(testPipelineConfig().Model), []string{"Lag_1"}, "run-1")
	assert.ErrorIs(t, err, ErrModelNotTrained)
}

func TestArtifactStore_WriteFailureIsModelError(t *testing.T) {
	set := smallSet(t)
	m := NewModel(testPipelineConfig().Model)
	require.NoError(t, m.Train(set, []string{"Lag_1"}))

	// parent "directory" is a regular file
	blocker := t.TempDir() + "/blocker"
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	store := NewArtifactStore(blocker+"/model.json", blocker+"/features.json")

	err := store.Save(m, []string{"Lag_1"}, "run-1")
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "save", modelErr.Op)
}
