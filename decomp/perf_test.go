package decomp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotPerfHistory(t *testing.T) {
	infos := []PerfInfo{
		{Iter: 0, ResNorm: 10, Fit: 0.1},
		{Iter: 1, ResNorm: 4, Fit: 0.6},
		{Iter: 2, ResNorm: 1, Fit: 0.9},
	}
	path := filepath.Join(t.TempDir(), "conv.png")
	require.NoError(t, PlotPerfHistory(infos, path))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}

func TestPlotPerfHistory_Empty(t *testing.T) {
	err := PlotPerfHistory(nil, filepath.Join(t.TempDir(), "x.png"))
	assert.Error(t, err)
}
