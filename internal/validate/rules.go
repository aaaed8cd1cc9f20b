package validate

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// Rules holds the value sets a dataset is checked against.
type Rules struct {
	Days            []model.Weekday    `yaml:"days"`
	Types           []model.MarketType `yaml:"types"`
	Region          string             `yaml:"region"`
	Bounds          BoundingBox        `yaml:"bounds"`
	ProvinceAliases map[string]string  `yaml:"province_aliases"`
}

// BoundingBox is an inclusive lat/lng rectangle.
type BoundingBox struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLng float64 `yaml:"min_lng"`
	MaxLng float64 `yaml:"max_lng"`
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c model.Coordinate) bool {
	bounds := geom.NewBounds(geom.XY).Set(b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
	return bounds.OverlapsPoint(geom.XY, geom.Coord{c.Lng, c.Lat})
}

// DefaultRules returns the built-in Netherlands rules.
func DefaultRules() Rules {
	return Rules{
		Days:   model.Weekdays(),
		Types:  model.MarketTypes(),
		Region: "Netherlands",
		Bounds: BoundingBox{MinLat: 50, MaxLat: 54, MinLng: 3, MaxLng: 8},
		ProvinceAliases: map[string]string{
			"Fryslân": "Friesland",
		},
	}
}

// LoadRules reads a YAML rules file. Sections the file leaves out keep
// their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "validate: read rules %s", path)
	}

	var file struct {
		Validation struct {
			Days            []model.Weekday    `yaml:"days"`
			Types           []model.MarketType `yaml:"types"`
			Region          string             `yaml:"region"`
			Bounds          *BoundingBox       `yaml:"bounds"`
			ProvinceAliases map[string]string  `yaml:"province_aliases"`
		} `yaml:"validation"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return rules, eris.Wrap(err, "validate: parse rules")
	}

	v := file.Validation
	if len(v.Days) > 0 {
		rules.Days = v.Days
	}
	if len(v.Types) > 0 {
		rules.Types = v.Types
	}
	if v.Region != "" {
		rules.Region = v.Region
	}
	if v.Bounds != nil {
		if v.Bounds.MinLat > v.Bounds.MaxLat || v.Bounds.MinLng > v.Bounds.MaxLng {
			return rules, eris.New("validate: rules bounds are inverted")
		}
		rules.Bounds = *v.Bounds
	}
	if v.ProvinceAliases != nil {
		rules.ProvinceAliases = v.ProvinceAliases
	}
	return rules, nil
}
