package signing

import (
	"fmt"
	"io"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

type distributionsFile struct {
	Distributions []map[string]any `yaml:"distributions"`
}

// LoadDistributions reads a YAML list of distributions. Omitted keys take the values of
// DefaultDistribution.
//
//	distributions:
//	  - {}
//	  - channel: beta
//	    brand_code: MOO
//	    package_as_pkg: true
func LoadDistributions(r io.Reader) ([]Distribution, error) {
	var f distributionsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not parse distributions: %v", err)
	}

	dists := make([]Distribution, 0, len(f.Distributions))
	for i, raw := range f.Distributions {
		d := DefaultDistribution()
		md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &d,
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := md.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid distribution %d: %v", i, err)
		}
		dists = append(dists, d)
	}

	if len(dists) == 0 {
		return []Distribution{DefaultDistribution()}, nil
	}
	return dists, nil
}
