// Package catalog exposes the fixed option lists the wizard offers: style and
// constraint tags, aspect ratios, output sizes and model variants.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"poster-studio/internal/poster"
)

//go:embed catalog.yaml
var defaultYAML []byte

type NamedOption struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type Catalog struct {
	Styles       []string      `yaml:"styles" json:"styles"`
	Constraints  []string      `yaml:"constraints" json:"constraints"`
	AspectRatios []string      `yaml:"aspect_ratios" json:"aspectRatios"`
	ImageSizes   []string      `yaml:"image_sizes" json:"imageSizes"`
	Models       []NamedOption `yaml:"models" json:"models"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog.yaml: %v", err))
	}
	return c
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	switch {
	case len(c.AspectRatios) == 0:
		return nil, errors.New("catalog has no aspect ratios")
	case len(c.ImageSizes) == 0:
		return nil, errors.New("catalog has no image sizes")
	case len(c.Models) == 0:
		return nil, errors.New("catalog has no models")
	}
	return &c, nil
}

func (c *Catalog) HasAspectRatio(v string) bool {
	return slices.Contains(c.AspectRatios, v)
}

func (c *Catalog) HasImageSize(v string) bool {
	return slices.Contains(c.ImageSizes, v)
}

func (c *Catalog) HasModel(v poster.ModelVariant) bool {
	return slices.ContainsFunc(c.Models, func(o NamedOption) bool {
		return o.Key == string(v)
	})
}

func (c *Catalog) ModelName(v poster.ModelVariant) string {
	for _, o := range c.Models {
		if o.Key == string(v) {
			return o.Name
		}
	}
	return string(v)
}

// CheckConfig reports the first field of cfg that is not in the catalog.
func (c *Catalog) CheckConfig(cfg poster.GenerationConfig) error {
	switch {
	case !c.HasAspectRatio(cfg.AspectRatio):
		return fmt.Errorf("unsupported aspect ratio %q", cfg.AspectRatio)
	case !c.HasImageSize(cfg.ImageSize):
		return fmt.Errorf("unsupported image size %q", cfg.ImageSize)
	case !c.HasModel(cfg.Model):
		return fmt.Errorf("unsupported model %q", cfg.Model)
	}
	return nil
}
