package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/scaled/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleService(name string) *types.Service {
	return &types.Service{
		Name:    name,
		Enabled: true,
		ContainerConfig: types.ContainerConfig{
			Image:    "cccs/" + name + ":latest",
			CPUCores: 1,
			RAMMB:    1024,
		},
		LicenceCount:   2,
		TimeoutSeconds: 60,
	}
}

func TestSaveAndGetService(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveService(sampleService("extract")))

	got, err := store.GetService("extract")
	require.NoError(t, err)
	assert.Equal(t, "extract", got.Name)
	assert.Equal(t, "cccs/extract:latest", got.ContainerConfig.Image)
	assert.True(t, got.Enabled)
}

func TestGetMissingService(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetService("missing")
	assert.Error(t, err)
}

func TestListAllServices(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveService(sampleService("extract")))
	require.NoError(t, store.SaveService(sampleService("sandbox")))

	services, err := store.ListAllServices()
	require.NoError(t, err)
	assert.Len(t, services, 2)
}

func TestSetEnabled(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveService(sampleService("extract")))

	require.NoError(t, store.SetEnabled("extract", false))

	got, err := store.GetService("extract")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	assert.Error(t, store.SetEnabled("missing", false))
}

func TestDeleteService(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveService(sampleService("extract")))
	require.NoError(t, store.DeleteService("extract"))

	_, err := store.GetService("extract")
	assert.Error(t, err)
}

func TestStageDefaultsToOff(t *testing.T) {
	store := newTestStore(t)

	stage, err := store.GetStage("extract")
	require.NoError(t, err)
	assert.Equal(t, types.StageOff, stage)
}

func TestStageRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetStage("extract", types.StageRunning))
	stage, err := store.GetStage("extract")
	require.NoError(t, err)
	assert.Equal(t, types.StageRunning, stage)

	require.NoError(t, store.SetStage("extract", types.StageOff))
	stage, err = store.GetStage("extract")
	require.NoError(t, err)
	assert.Equal(t, types.StageOff, stage)
}
