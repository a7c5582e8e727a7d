package yaml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-state/atomicstate/internal/testutil"
)

func TestLoadSampleDefinition(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader().WithAdapter(testutil.NewMockAdapter())

	st, err := loader.LoadString(ctx, testutil.SampleDefinitionYAML)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close(context.Background())) })

	assert.Equal(t, "app", st.Name())

	got, err := st.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)

	got, err = st.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", got)

	got, err = st.Get(ctx, "label")
	require.NoError(t, err)
	assert.Equal(t, "count is 0", got)

	require.NoError(t, st.Set(ctx, "counter", 2))
	got, err = st.Get(ctx, "label")
	require.NoError(t, err)
	assert.Equal(t, "count is 2", got)

	// Atoms in the session scope resolve there; names missing from the
	// child scope resolve through the root.
	sess, err := st.Scope("session")
	require.NoError(t, err)
	got, err = sess.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	got, err = sess.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestLoadInvalidDefinition(t *testing.T) {
	_, err := NewLoader().LoadString(context.Background(), testutil.InvalidDefinitionYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter kind 'no-such-kind'")
}

func TestLoadPersistentWithoutAdapter(t *testing.T) {
	_, err := NewLoader().LoadString(context.Background(), testutil.SampleDefinitionYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter configured")
}

func TestLoadActionsAndEffects(t *testing.T) {
	const doc = `store:
  name: tasks
  atoms:
    - name: count
      default: 0
      actions:
        - name: add
          kind: lua
          config:
            source: |
              function reduce(state, payload)
                return state + payload
              end
      effects:
        - kind: validate
          config:
            schema:
              type: number
              minimum: 0
`
	ctx := context.Background()
	st, err := NewLoader().LoadString(ctx, doc)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close(context.Background())) })

	require.NoError(t, st.Dispatch(ctx, "count", "add", 5))
	got, err := st.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, float64(5), got)

	err = st.Set(ctx, "count", -3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	got, err = st.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, float64(5), got)
}

func TestLoadAsyncFilter(t *testing.T) {
	const doc = `store:
  name: app
  atoms:
    - name: count
      default: 3
  filters:
    - name: double
      kind: expr
      async: true
      default: -1
      config:
        expression: 'atom("count") * 2'
`
	ctx := context.Background()
	st, err := NewLoader().LoadString(ctx, doc)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close(context.Background())) })

	ok := testutil.Eventually(func() bool {
		v, err := st.Get(ctx, "double")
		return err == nil && v == float64(6)
	}, time.Second)
	assert.True(t, ok, "async filter should converge to 6")
}

func TestValidateDefinition(t *testing.T) {
	loader := NewLoader()

	def, err := NewParser().ParseString(testutil.SampleDefinitionYAML)
	require.NoError(t, err)
	require.NoError(t, loader.Validate(def))

	def, err = NewParser().ParseString(testutil.InvalidDefinitionYAML)
	require.NoError(t, err)
	err = loader.Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter kind 'no-such-kind'")
}

func TestValidateCatchesBadExpression(t *testing.T) {
	def := &StoreDefinition{
		Name:  "app",
		Atoms: []AtomDefinition{{Name: "counter"}},
		Filters: []FilterDefinition{
			{Name: "broken", Kind: "expr", Config: map[string]any{"expression": "1 +"}},
		},
	}
	require.Error(t, NewLoader().Validate(def))
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testutil.SampleDefinitionYAML), 0o600))

	st, err := NewLoader().WithAdapter(testutil.NewMockAdapter()).LoadFile(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close(context.Background())) })

	got, err := st.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testutil.InvalidDefinitionYAML), 0o600))

	err := NewLoader().ValidateFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-kind")
}
