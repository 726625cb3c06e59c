package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputTagExtraction(t *testing.T) {
	raw := "Some preamble text.\n<json_output>{\"summary\":\"a doc\",\"keywords\":[\"a\",\"b\"]}</json_output>\ntrailing"
	m := jsonOutputTag.FindStringSubmatch(raw)
	require.NotNil(t, m)
	assert.Contains(t, m[1], "\"summary\":\"a doc\"")
}

func TestJSONOutputTagMissing(t *testing.T) {
	raw := "no tags here at all"
	m := jsonOutputTag.FindStringSubmatch(raw)
	assert.Nil(t, m)
}
