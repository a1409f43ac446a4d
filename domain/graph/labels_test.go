package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"service":         "Service",
		"service_account": "Service Account",
		"reads-from":      "Reads From",
		"apiGateway":      "Api Gateway",
		"APIGateway":      "API Gateway",
		"proj-42":         "Proj 42",
		"team.platform":   "Team Platform",
		"  spaced out  ":  "Spaced Out",
		"k8s/cluster":     "K8s Cluster",
		"DB":              "DB",
	}

	for raw, want := range tests {
		assert.Equal(t, want, Humanize(raw), "Humanize(%q)", raw)
	}
}

func TestHumanize_Deterministic(t *testing.T) {
	assert.Equal(t, Humanize("publishes_to"), Humanize("publishes_to"))
}
