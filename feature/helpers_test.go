package feature

import (
	"testing"

	"github.com/rushteam/homeprice/core"
)

func f64(v float64) *float64 { return &v }

func testSchema() *Schema {
	return &Schema{
		FeatureColumns: []string{
			"bedrooms", "bathrooms", "sqft_living", "sqft_lot",
			"year", "month", "day_of_week",
			"zipcode_freq", "city_full_encoded",
		},
		FeatureCount: 9,
		LabelColumn:  "price",
		ModelVersion: "v1",
		Defaults:     map[string]float64{"sqft_lot": 5000},
	}
}

func testEncoderFile() *EncoderFile {
	return &EncoderFile{
		Version: "v1",
		Encoders: []FittedEncoder{
			{
				Name:    "zipcode_freq",
				Kind:    KindFrequency,
				Source:  core.FieldZipcode,
				Mapping: map[string]float64{"98101": 0.25, "98004": 0.5},
			},
			{
				Name:       "city_full_encoded",
				Kind:       KindTarget,
				Source:     core.FieldCity,
				Mapping:    map[string]float64{"Seattle": 600000, "Bellevue": 900000},
				GlobalMean: f64(540000),
			},
		},
	}
}

func testRegions() map[string]string {
	return map[string]string{"98101": "Seattle", "98004": "Bellevue", "98999": "Nowhere"}
}

func newTestEncoderStore(t *testing.T) *EncoderStore {
	t.Helper()
	es, err := NewEncoderStore(testSchema(), testEncoderFile(), testRegions(), nil, 0)
	if err != nil {
		t.Fatalf("NewEncoderStore: %v", err)
	}
	return es
}
