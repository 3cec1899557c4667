package imagery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupType(t *testing.T) {
	tests := []struct {
		code string
		want TypeInfo
	}{
		{"B738", TypeInfo{"B738", "Boeing", CategoryAirliner}},
		{" b789 ", TypeInfo{"B789", "Boeing", CategoryWidebody}},
		{"A20N", TypeInfo{"A20N", "Airbus", CategoryAirliner}},
		{"A388", TypeInfo{"A388", "Airbus", CategoryWidebody}},
		{"E75L", TypeInfo{"E75L", "Embraer", CategoryRegional}},
		{"CRJ9", TypeInfo{"CRJ9", "Bombardier", CategoryRegional}},
		{"DH8D", TypeInfo{"DH8D", "De Havilland Canada", CategoryTurboprop}},
		{"AT76", TypeInfo{"AT76", "ATR", CategoryTurboprop}},
		{"C172", TypeInfo{"C172", "Cessna", CategoryLight}},
		{"SR22", TypeInfo{"SR22", "Cirrus", CategoryLight}},
		{"GLF6", TypeInfo{"GLF6", "Gulfstream", CategoryBusiness}},
		{"R44", TypeInfo{"R44", "Robinson", CategoryHelicopter}},
		{"EC35", TypeInfo{"EC35", "Airbus Helicopters", CategoryHelicopter}},
		// Prefix rules
		{"B7X9", TypeInfo{"B7X9", "Boeing", CategoryAirliner}},
		{"CRJZ", TypeInfo{"CRJZ", "Bombardier", CategoryRegional}},
		{"A3ZZ", TypeInfo{"A3ZZ", "Airbus", CategoryAirliner}},
		// Unknown
		{"ZZZZ", TypeInfo{Code: "ZZZZ"}},
		{"", TypeInfo{}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupType(tt.code))
		})
	}
}

func TestCategoryFromEmitter(t *testing.T) {
	tests := map[string]Category{
		"A1": CategoryLight,
		"a2": CategoryBusiness,
		"A3": CategoryAirliner,
		"A5": CategoryWidebody,
		"A7": CategoryHelicopter,
		"B1": CategoryGlider,
		"B2": CategoryBalloon,
		"B6": CategoryDrone,
		"A0": CategoryUnknown,
		"":   CategoryUnknown,
		"C1": CategoryUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, CategoryFromEmitter(in), "emitter %q", in)
	}
}

func TestTypeInfoLabel(t *testing.T) {
	assert.Equal(t, "Boeing B738", LookupType("B738").Label())
	assert.Equal(t, "ZZZZ", LookupType("ZZZZ").Label())
	assert.Equal(t, "helicopter", TypeInfo{Category: CategoryHelicopter}.Label())
	assert.Equal(t, "Cessna", TypeInfo{Manufacturer: "Cessna"}.Label())
}

func TestCandidates(t *testing.T) {
	got := Candidates(LookupType("DH8D"))
	assert.Equal(t, []Candidate{
		{LevelType, "dh8d"},
		{LevelManufacturer, "de-havilland-canada"},
		{LevelCategory, "turboprop"},
		{LevelDefault, DefaultKey},
	}, got)

	assert.Equal(t, []Candidate{{LevelDefault, DefaultKey}}, Candidates(TypeInfo{}))
}
