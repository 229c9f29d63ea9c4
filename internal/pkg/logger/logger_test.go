package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLogRedactsRecipientFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG)

	l.Log(INFO, "claimed item", "recipient", "alice@example.com", "campaign_id", "c1")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "al***@example.com", entry["recipient"])
	assert.Equal(t, "c1", entry["campaign_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLogRedactsEmbeddedEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG)

	l.Log(WARN, "delivery failed", "detail", "550 rejected for bob.smith@mail.test")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "550 rejected for bo***@mail.test", entry["detail"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, ERROR)

	l.Log(INFO, "dropped")
	assert.Zero(t, buf.Len())

	l.Log(ERROR, "kept")
	assert.NotZero(t, buf.Len())
}
