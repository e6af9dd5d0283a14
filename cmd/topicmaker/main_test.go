package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicConfig(t *testing.T) {
	cfg := topicConfig()

	require.Contains(t, cfg, "cleanup.policy")
	assert.Equal(t, "compact,delete", *cfg["cleanup.policy"])
	assert.Equal(t, "604800000", *cfg["retention.ms"])
	assert.Equal(t, "1", *cfg["min.insync.replicas"])
}
