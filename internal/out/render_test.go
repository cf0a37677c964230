package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

func sampleEnvelope() model.Envelope {
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data: []map[string]any{
			{"source": "1inch", "to_amount": "2500", "price_impact_pct": 0.1},
			{"source": "uniswap", "to_amount": "2490", "price_impact_pct": 0.3},
		},
	}
}

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleEnvelope(), config.Settings{OutputMode: "json"})
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "v1", env["version"])
}

func TestRenderResultsOnlyWithSelect(t *testing.T) {
	var buf bytes.Buffer
	settings := config.Settings{
		OutputMode:   "json",
		ResultsOnly:  true,
		SelectFields: []string{"source"},
	}
	require.NoError(t, Render(&buf, sampleEnvelope(), settings))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"source": "1inch"}, rows[0])
}

func TestRenderPlainSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	require.NoError(t, Render(&buf, sampleEnvelope(), settings))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "price_impact_pct="), "got %q", lines[0])
	assert.Contains(t, lines[0], "source=1inch")
}

func TestRenderPlainFoldsMeta(t *testing.T) {
	env := sampleEnvelope()
	env.Meta = model.EnvelopeMeta{
		RequestID: "req-1",
		Command:   "quote",
		Sources: []model.SourceStatus{
			{Name: "1inch", Status: model.SourceOK},
			{Name: "uniswap", Status: model.SourceTimeout},
		},
		Cache:   model.CacheStatus{Status: model.CacheHit, AgeMS: 250},
		Partial: true,
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, env, config.Settings{OutputMode: "plain"}))

	line := buf.String()
	assert.Contains(t, line, "command=quote")
	assert.Contains(t, line, "request_id=req-1")
	assert.Contains(t, line, "cache=hit")
	assert.Contains(t, line, "cache_age_ms=250")
	assert.Contains(t, line, "sources=1inch:ok,uniswap:timeout")
	assert.Contains(t, line, "partial=true")
}

func TestRenderPlainEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	env := model.Envelope{Version: model.EnvelopeVersion, Success: true, Data: []any{}}
	require.NoError(t, Render(&buf, env, config.Settings{OutputMode: "plain", ResultsOnly: true}))
	assert.Equal(t, "[]\n", buf.String())
}
