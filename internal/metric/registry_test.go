package metric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePreset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryEmptyPathUsesBuiltins(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	defs := r.Definitions()
	assert.Equal(t, DefaultDefinitions(), defs)
	assert.Equal(t, int64(1), r.Snapshot().Version)
}

func TestRegistryLoadsPresetFile(t *testing.T) {
	path := writePreset(t, `
metrics:
  - key: cagr
    label: 年化報酬率
    class: percentage
    precision: 2
    null_policy: none
  - key: sharpe_ratio
    label: 夏普比率
    class: ratio
    precision: 2
    null_policy: nonfinite
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "cagr", defs[0].Key)
	assert.Equal(t, ClassPercentage, defs[0].Class)
	assert.Equal(t, NonFiniteAsNA, defs[1].Null)

	formatters := r.Snapshot().Formatters()
	assert.Contains(t, formatters, "sharpe_ratio")
}

func TestRegistryDefaultsNullPolicy(t *testing.T) {
	path := writePreset(t, `
metrics:
  - key: volatility
    label: 年化波動率
    class: percentage
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, NullNone, r.Definitions()[0].Null)
}

func TestRegistryRejectsBadPreset(t *testing.T) {
	cases := map[string]string{
		"缺少 metrics": `foo: bar`,
		"未知 class": `
metrics:
  - key: cagr
    label: x
    class: money
`,
		"多余字段": `
metrics:
  - key: cagr
    label: x
    class: ratio
    extra: true
`,
		"key 重複": `
metrics:
  - key: cagr
    label: x
    class: ratio
  - key: cagr
    label: y
    class: ratio
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(writePreset(t, content))
			assert.Error(t, err)
		})
	}
}

func TestRegistryMissingFile(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
