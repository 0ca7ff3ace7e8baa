package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ispkit/sessiond/internal/models"
)

func TestOverlapMessageCrossKind(t *testing.T) {
	// Disjointness holds across kinds: a guest pool may not share address
	// space with an internet pool.
	inet := models.IPPool{
		Name: "inet", Kind: models.PoolKindInternet,
		Network: "10.152.64.0/24", IPStart: "10.152.64.2", IPEnd: "10.152.64.254",
	}
	guest := models.IPPool{
		Name: "guest", Kind: models.PoolKindGuest,
		Network: "10.152.64.0/25", IPStart: "10.152.64.10", IPEnd: "10.152.64.120",
	}

	msg, ok := overlapMessage(&guest, []models.IPPool{inet})
	assert.False(t, ok)
	assert.Contains(t, msg, "inet")
}

func TestOverlapMessageDisjointPools(t *testing.T) {
	inet := models.IPPool{
		Name: "inet", Kind: models.PoolKindInternet,
		Network: "10.152.64.0/24", IPStart: "10.152.64.2", IPEnd: "10.152.64.254",
	}
	guest := models.IPPool{
		Name: "guest", Kind: models.PoolKindGuest,
		Network: "10.200.0.0/24", IPStart: "10.200.0.2", IPEnd: "10.200.0.254",
	}

	msg, ok := overlapMessage(&guest, []models.IPPool{inet})
	assert.True(t, ok)
	assert.Empty(t, msg)
}
