package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zip3-etl/internal/zip3"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"transform", "trim", "coverage", "publish"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "zip3-etl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestPublishCommand_Flags(t *testing.T) {
	flag := publishCmd.Flags().Lookup("replace")
	require.NotNil(t, flag, "publish command should have --replace flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestCoverageCommand_Args(t *testing.T) {
	assert.NoError(t, coverageCmd.Args(coverageCmd, nil))
	assert.NoError(t, coverageCmd.Args(coverageCmd, []string{"out/layer.gpkg"}))
	assert.Error(t, coverageCmd.Args(coverageCmd, []string{"a", "b"}))
}

// captureStdout runs fn with os.Stdout redirected to a pipe.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	require.NoError(t, w.Close())

	buf := make([]byte, 64*1024)
	n, _ := r.Read(buf)
	return string(buf[:n])
}

func TestPrintReport(t *testing.T) {
	rep := zip3.NewReport(zip3.ModeTrimmed)
	rep.ZCTACount = 100
	rep.StateCount = 2
	rep.AssignedWithin = 95
	rep.AssignedCentroid = 4
	rep.Unassigned = 1
	rep.UnassignedGEOIDs = []string{"00001"}
	rep.DissolvedCount = 12
	rep.Elapsed = 3 * time.Second
	rep.Coverage = []zip3.StateCoverage{
		{State: "KS", Ratio: 0.97},
		{State: "MO", Ratio: 1.01},
	}

	out := captureStdout(t, func() { printReport(rep) })
	assert.Contains(t, out, "trimmed")
	assert.Contains(t, out, "assigned: 99 (within: 95, centroid: 4)")
	assert.Contains(t, out, "unassigned GEOIDs: 00001")
	assert.Contains(t, out, "KS")
	assert.Contains(t, out, "excellent")
}

func TestPrintCoverage_Empty(t *testing.T) {
	out := captureStdout(t, func() { printCoverage(zip3.NewReport(zip3.ModeDissolved)) })
	assert.Contains(t, out, "No coverage computed")
}
