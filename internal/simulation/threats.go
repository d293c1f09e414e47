// Package simulation produces synthetic threat detections for seeding and
// exercising the entity graph without a live detection pipeline.
package simulation

import (
	"fmt"
	"math/rand"

	"github.com/nidhogg/cognigraph/internal/kgraph"
	"go.uber.org/zap"
)

// Detection is one simulated threat event.
type Detection struct {
	ThreatType string `json:"type"`
	Vector     string `json:"vector"`
	Severity   int    `json:"severity"` // 1-10
}

var sampleThreats = []Detection{
	{ThreatType: "Phishing", Vector: "Email", Severity: 6},
	{ThreatType: "Ransomware", Vector: "Executable", Severity: 9},
	{ThreatType: "DDoS", Vector: "Network", Severity: 7},
	{ThreatType: "Insider Threat", Vector: "User Behavior", Severity: 8},
	{ThreatType: "Supply Chain", Vector: "Third-Party", Severity: 5},
}

// Simulator draws detections from the sample pool.
type Simulator struct {
	rng    *rand.Rand
	logger *zap.Logger
}

// New returns a Simulator. A fixed seed gives reproducible runs in tests.
func New(seed int64, logger *zap.Logger) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed)), logger: logger}
}

// Run returns count random detections.
func (s *Simulator) Run(count int) []Detection {
	if count <= 0 {
		count = 5
	}
	out := make([]Detection, count)
	for i := range out {
		out[i] = sampleThreats[s.rng.Intn(len(sampleThreats))]
	}
	s.logger.Info("threat simulation complete", zap.Int("detections", count))
	return out
}

// Seed injects a detection chain into the entity graph: a user owning a
// device on a network that is exposed to the detected threat. Returns the
// seeded threat ids.
func (s *Simulator) Seed(g *kgraph.Graph, detections []Detection) []string {
	var threats []string
	for i, d := range detections {
		userID := fmt.Sprintf("user_sim_%d", i)
		deviceID := fmt.Sprintf("device_sim_%d", i)
		networkID := fmt.Sprintf("network_sim_%d", i)
		threatID := fmt.Sprintf("threat_%s_%d", sanitize(d.ThreatType), i)

		g.AddEntity(kgraph.EntityUser, userID, nil)
		g.AddEntity(kgraph.EntityDevice, deviceID, nil)
		g.AddEntity(kgraph.EntityNetwork, networkID, nil)
		g.AddEntity(kgraph.EntityThreat, threatID, map[string]string{
			"name":     d.ThreatType,
			"vector":   d.Vector,
			"severity": fmt.Sprintf("%d", d.Severity),
		})

		g.AddRelationship(userID, deviceID, "owns", nil)
		g.AddRelationship(deviceID, networkID, "connected_to", nil)
		g.AddRelationship(networkID, threatID, "exposed_to", nil)

		threats = append(threats, threatID)
	}
	return threats
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ', r == '-':
			out = append(out, '_')
		}
	}
	return string(out)
}
