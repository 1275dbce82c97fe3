package scene

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relaylink/pkg/events"
)

func TestCache_ApplySceneInfo(t *testing.T) {
	c := NewCache()
	c.Expect("sync-1")

	msg := events.Classify([]byte(`{"message_id":"m1","type":"command_completed","payload":{
		"command_id":"sync-1","command":"get_scene_info",
		"result":{"objects":[{"name":"Light","type":"LIGHT"},{"name":"Cube","type":"MESH","location":[0,0,1]}]}
	}}`))
	completed, ok := msg.(*events.CommandCompleted)
	require.True(t, ok)

	applied, err := c.Apply(completed)
	require.NoError(t, err)
	assert.True(t, applied)

	snap := c.Snapshot()
	require.Len(t, snap.Objects, 2)
	assert.Equal(t, "Cube", snap.Objects[0].Name)
	assert.Equal(t, []float64{0, 0, 1}, snap.Objects[0].Location)
	assert.Equal(t, "Light", snap.Objects[1].Name)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestCache_ApplyIgnoresOtherCommands(t *testing.T) {
	c := NewCache()

	applied, err := c.Apply(&events.CommandCompleted{Command: "add_cube", Success: true})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = c.Apply(&events.CommandCompleted{Command: events.TypeGetSceneInfo, Success: false})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = c.Apply(nil)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCache_ApplyBadResult(t *testing.T) {
	c := NewCache()
	c.Replace([]Object{{Name: "Cube"}})
	c.Expect("sync-1")

	_, err := c.Apply(&events.CommandCompleted{
		CommandID: "sync-1",
		Command:   events.TypeGetSceneInfo,
		Success:   true,
		Result:    []byte(`"not an object"`),
	})
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len(), "failed decode must not clobber the cache")
}

func TestCache_Clear(t *testing.T) {
	c := NewCache()
	c.Replace([]Object{{Name: "Cube"}, {Name: "Camera"}})
	v := c.Snapshot().Version

	c.Clear()
	snap := c.Snapshot()
	assert.Empty(t, snap.Objects)
	assert.True(t, snap.UpdatedAt.IsZero())
	assert.Greater(t, snap.Version, v)
	assert.Equal(t, 0, c.Len())
}

func TestCache_HandlerViaRouter(t *testing.T) {
	c := NewCache()
	r := events.NewRouter()
	r.Handle(events.KindCommandCompleted, c.Handler())
	c.Expect("sync-1")

	r.Dispatch(events.Classify([]byte(`{"message_id":"m1","type":"command_completed","payload":{
		"command_id":"sync-1","command":"get_scene_info","result":{"objects":[{"name":"Cube","type":"MESH"}]}
	}}`)))
	require.Len(t, c.Objects(), 1)
	assert.Equal(t, "Cube", c.Objects()[0].Name)

	// A malformed result is logged and leaves the cache alone.
	c.Expect("sync-2")
	r.Dispatch(events.Classify([]byte(`{"message_id":"m2","type":"command_completed","payload":{
		"command_id":"sync-2","command":"get_scene_info","result":[1,2]
	}}`)))
	assert.Equal(t, 1, c.Len())
}

func sceneInfo(commandID string, names ...string) *events.CommandCompleted {
	objects := make([]map[string]string, 0, len(names))
	for _, n := range names {
		objects = append(objects, map[string]string{"name": n})
	}
	result, _ := json.Marshal(map[string]any{"objects": objects})
	return &events.CommandCompleted{
		CommandID: commandID,
		Command:   events.TypeGetSceneInfo,
		Success:   true,
		Result:    result,
	}
}

func TestCache_OnlyOutstandingSyncApplies(t *testing.T) {
	c := NewCache()

	applied, err := c.Apply(sceneInfo("sync-1", "Cube"))
	require.NoError(t, err)
	assert.False(t, applied, "nothing outstanding")

	c.Expect("sync-2")
	applied, err = c.Apply(sceneInfo("sync-1", "Cube"))
	require.NoError(t, err)
	assert.False(t, applied, "answer to an older sync")
	assert.Equal(t, 0, c.Len())

	applied, err = c.Apply(sceneInfo("sync-2", "Cube", "Camera"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, c.Len())

	// A duplicate delivery of the same answer is not applied twice.
	applied, err = c.Apply(sceneInfo("sync-2", "Cube"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, c.Len())
}

func TestCache_LateResultAfterClearIgnored(t *testing.T) {
	c := NewCache()
	r := events.NewRouter()
	r.Handle(events.KindCommandCompleted, c.Handler())

	c.Expect("sync-1")
	c.Clear()

	r.Dispatch(sceneInfo("sync-1", "Cube"))
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Snapshot().UpdatedAt.IsZero())
}
