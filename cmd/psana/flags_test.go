package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-m", "MyPkg.Dump",
		"-m", "MyPkg.Filter:tight",
		"-n", "100",
		"-s", "5",
		"-p", "8",
		"-e", "xpptut15",
		"-o", "MyPkg.Dump.level=debug",
		"exp=xpptut15:run=54",
	})
	require.NoError(t, err)

	assert.Equal(t, stringList{"MyPkg.Dump", "MyPkg.Filter:tight"}, cfg.Modules)
	assert.Equal(t, uint(100), cfg.NumEvents)
	assert.Equal(t, uint(5), cfg.SkipEvents)
	assert.Equal(t, uint(8), cfg.NumCPU)
	assert.Equal(t, []string{"exp=xpptut15:run=54"}, cfg.Datasets)
}

func TestBuildOptions(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-m", "MyPkg.Dump",
		"-n", "100",
		"-p", "4",
		"-e", "XCS:xcs4512",
		"-j", "myjob",
		"-b", "/calib/{instr}/{exp}",
		"-o", "psana.events=7",
	})
	require.NoError(t, err)

	_, options := buildOptions(cfg)
	assert.Equal(t, "MyPkg.Dump", options["psana.modules"])
	assert.Equal(t, "XCS", options["psana.instrument"])
	assert.Equal(t, "xcs4512", options["psana.experiment"])
	assert.Equal(t, "myjob", options["psana.job-name"])
	assert.Equal(t, "/calib/{instr}/{exp}", options["psana.calib-dir"])
	assert.Equal(t, "4", options["psana.parallel"])
	// -o overrides the dedicated flag
	assert.Equal(t, "7", options["psana.events"])
}

func TestSplitExperiment(t *testing.T) {
	instr, exp := splitExperiment("XPP:xpp12311")
	assert.Equal(t, "XPP", instr)
	assert.Equal(t, "xpp12311", exp)

	instr, exp = splitExperiment("xpp12311")
	assert.Equal(t, "XPP", instr)
	assert.Equal(t, "xpp12311", exp)

	instr, exp = splitExperiment("ab")
	assert.Equal(t, "AB", instr)
	assert.Equal(t, "ab", exp)
}

func TestBuildOptionsValuelessOption(t *testing.T) {
	cfg, err := parseFlags([]string{"-o", "psana.dump_config_file"})
	require.NoError(t, err)

	_, options := buildOptions(cfg)
	v, ok := options["psana.dump_config_file"]
	require.True(t, ok)
	assert.Equal(t, "", v)
}
