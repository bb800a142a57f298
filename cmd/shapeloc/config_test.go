package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig([]string{"-model", "face.dat"}, io.Discard, nil)
	require.NoError(t, err)
	assert.Equal(t, pipeName, cfg.Source)
	assert.Equal(t, pipeName, cfg.Destination)
	assert.Equal(t, "face.dat", cfg.Model)
	assert.Equal(t, "zstd", cfg.Compress)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestConfig_FileValuesAreDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapeloc.yml")
	yml := "model: models/face.dat\nout: result.json\nface: true\ncc: facefinder\nangle: 0.25\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := parseConfig([]string{"-config", path, "-out", "annotated.png", "-in", "face.jpg"}, io.Discard, nil)
	require.NoError(t, err)
	assert.Equal(t, "models/face.dat", cfg.Model)
	assert.Equal(t, "annotated.png", cfg.Destination)
	assert.Equal(t, "face.jpg", cfg.Source)
	assert.True(t, cfg.FaceDetect)
	assert.Equal(t, "facefinder", cfg.Cascade)
	assert.Equal(t, 0.25, cfg.FaceAngle)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "zstd", cfg.Compress)
}

func TestConfig_Errors(t *testing.T) {
	_, err := parseConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yml")}, io.Discard, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "shapeloc.yml")
	require.NoError(t, os.WriteFile(path, []byte("unknown_key: 1\n"), 0644))
	_, err = parseConfig([]string{"-config", path}, io.Discard, nil)
	assert.Error(t, err)

	_, err = parseConfig([]string{"-no-such-flag"}, io.Discard, nil)
	assert.Error(t, err)
}

func TestConfig_ParseRect(t *testing.T) {
	r, err := parseRect("10, 20,30.5,40")
	require.NoError(t, err)
	assert.Equal(t, geom.NewRectangle(10, 20, 30.5, 40), *r)

	for _, s := range []string{"", "1,2,3", "a,b,c,d", "0,0,0,10"} {
		_, err := parseRect(s)
		assert.Error(t, err, s)
	}
}

func TestConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("info", "", &buf)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("model loaded")
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), "model loaded")
	assert.NotContains(t, buf.String(), "hidden")

	logFile := filepath.Join(t.TempDir(), "shapeloc.log")
	logger, err = newLogger("debug", logFile, io.Discard)
	require.NoError(t, err)
	logger.Debug("rotated")
	require.NoError(t, logger.Sync())
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"rotated"`)

	_, err = newLogger("verbose", "", io.Discard)
	assert.Error(t, err)
}

func TestConfig_Drawer(t *testing.T) {
	cfg, err := parseConfig([]string{"-point-color", "#00ff00", "-op", "src_atop", "-blend", "multiply"}, io.Discard, nil)
	require.NoError(t, err)

	d, err := newDrawer(cfg)
	require.NoError(t, err)
	assert.Equal(t, overlay.SrcAtop, d.Op)
	assert.Equal(t, overlay.Multiply, d.Blend)
	assert.Equal(t, uint8(0xff), d.PointColor.G)

	d, err = newDrawer(defaultConfig())
	require.NoError(t, err)
	assert.Equal(t, overlay.SrcOver, d.Op)
	assert.Equal(t, overlay.Normal, d.Blend)

	for _, args := range [][]string{{"-op", "plus"}, {"-blend", "dodge"}, {"-line-color", "blue"}} {
		cfg, err := parseConfig(args, io.Discard, nil)
		require.NoError(t, err)
		_, err = newDrawer(cfg)
		assert.Error(t, err, args)
	}
}
