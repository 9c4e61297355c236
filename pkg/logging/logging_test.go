package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level Level) Logger {
	return NewLogger(&Config{
		Level:       level,
		ServiceName: "nvcbot-test",
		JSONFormat:  true,
		Output:      buf,
	})
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelInfo)

	log.Info("cycle complete", F("fetched", 3), Err(errors.New("partial")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "cycle complete", entry["message"])
	require.Equal(t, "nvcbot-test", entry["service"])
	require.Equal(t, float64(3), entry["fetched"])
	require.Equal(t, "partial", entry["error"])
	require.Contains(t, entry, "time")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelWarn)

	log.Debug("dropped")
	log.Info("dropped too")
	require.Zero(t, buf.Len())

	log.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestWithAttachesFieldsToAllEntries(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelInfo).With(F("cycle_id", "c1"))

	log.Info("first")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "c1", entry["cycle_id"])
}

func TestNopDiscardsEverything(t *testing.T) {
	// Must not panic with any argument shape.
	log := Nop()
	log.Debug("a")
	log.Info("b", F("k", "v"))
	log.Error("c", Err(errors.New("boom")))
	log.With(F("k", "v")).Warn("d")
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, Level("verbose"))

	log.Debug("dropped")
	require.Zero(t, buf.Len())
	log.Info("kept")
	require.NotZero(t, buf.Len())
}
