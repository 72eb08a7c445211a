package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		in   string
		want NodeID
	}{
		{"Door Controller", "door_controller"},
		{"  door   controller ", "door_controller"},
		{"DOOR-CONTROLLER", "door_controller"},
		{"Door Controller (v2)", "door_controller_v2"},
		{"Türsteuerung", "türsteuerung"},
		{"REQ-001", "req_001"},
		{"C++", "c++"},
		{"C#", "c#"},
		{"C", "c"},
		{"C++ Runtime", "c++_runtime"},
		{"", ""},
		{"   ", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalID(tt.in))
		})
	}
}

func TestCanonicalID_Stable(t *testing.T) {
	assert.Equal(t, CanonicalID("Door Controller"), CanonicalID("door controller"))
	assert.Equal(t, CanonicalID(string(CanonicalID("Door Controller"))), CanonicalID("Door Controller"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Door Controller", DisplayName("  Door \t Controller\n"))
}

func TestCanonicalRelType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"monitors", "MONITORS"},
		{"allocatedTo", "ALLOCATED_TO"},
		{"is part of", "IS_PART_OF"},
		{"refinedBy", "REFINED_BY"},
		{"has-sub-component", "HAS_SUB_COMPONENT"},
		{"CONTAINS", "CONTAINS"},
		{"2nd order", "_2ND_ORDER"},
		{"", ""},
		{"!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalRelType(tt.in))
		})
	}
}

func TestCanonicalLabel(t *testing.T) {
	assert.Equal(t, "UseCase", CanonicalLabel("use case"))
	assert.Equal(t, "Requirement", CanonicalLabel("requirement"))
	assert.Equal(t, "ModelElement", CanonicalLabel("ModelElement"))
	assert.Equal(t, DefaultLabel, CanonicalLabel(""))
	assert.Equal(t, DefaultLabel, CanonicalLabel(" - "))
}

func TestScalarProperties(t *testing.T) {
	props := ScalarProperties(map[string]any{
		"name":   "Door",
		"count":  3,
		"ratio":  float32(0.5),
		"ok":     true,
		"nested": map[string]any{"a": 1},
		"list":   []string{"a"},
		"nil":    nil,
		"":       "dropped",
	})
	assert.Equal(t, map[string]any{
		"name":  "Door",
		"count": int64(3),
		"ratio": float64(0.5),
		"ok":    true,
	}, props)
}
