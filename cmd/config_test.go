package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sdi-cli/internal/config"
)

func TestWriteConfig_RedactsPostgresURL(t *testing.T) {
	c := &config.Config{
		Store: config.StoreConfig{Driver: "postgres", DatabaseURL: "postgres://user:secret@db/sdi"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, c))

	assert.NotContains(t, buf.String(), "secret")
	assert.Contains(t, buf.String(), "<redacted>")
	assert.Equal(t, "postgres://user:secret@db/sdi", c.Store.DatabaseURL, "original config must not change")
}

func TestWriteConfig_SQLitePathShown(t *testing.T) {
	c := &config.Config{
		Road:   config.RoadConfig{WidthM: 3.5, IntervalM: 50, ProjectedCRS: "EPSG:32749"},
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: "runs.db"},
		Export: config.ExportConfig{Formats: []string{"xlsx", "gpkg"}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, c))

	var back config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "runs.db", back.Store.DatabaseURL)
	assert.Equal(t, 3.5, back.Road.WidthM)
	assert.Equal(t, "EPSG:32749", back.Road.ProjectedCRS)
	assert.Equal(t, []string{"xlsx", "gpkg"}, back.Export.Formats)
}
