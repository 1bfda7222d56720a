// Package site defines the per-carrier discovery strategy table.
package site

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Mode selects how route pages are discovered for a carrier sub-site.
type Mode int

const (
	// ModeListing reads a known listing page and follows its content links.
	ModeListing Mode = iota + 1
	// ModeCrawl runs a bounded breadth-first crawl from seed URLs.
	ModeCrawl
	// ModeProbe lists the root page's links and probes each for a map marker.
	ModeProbe
)

// String returns the mode name used in the sites file.
func (m Mode) String() string {
	switch m {
	case ModeListing:
		return "listing"
	case ModeCrawl:
		return "crawl"
	case ModeProbe:
		return "probe"
	default:
		return "unknown"
	}
}

// ParseMode converts a sites-file string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "listing":
		return ModeListing, nil
	case "crawl":
		return ModeCrawl, nil
	case "probe":
		return ModeProbe, nil
	default:
		return 0, eris.Errorf("site: unknown mode %q (valid: listing, crawl, probe)", s)
	}
}

// Site describes one carrier sub-site and its discovery strategy.
type Site struct {
	// Code is the short carrier identifier, e.g. "wro1".
	Code string
	Mode Mode
	// Listing is the route listing URL for ModeListing sites.
	Listing string
	// Seeds are the crawl start URLs for ModeCrawl sites.
	Seeds []string
	// SharedLabel, when set, replaces the per-site FC label on collected
	// routes. Sites sharing a label share one listing and are collected once.
	SharedLabel string
}

// Label returns the FC label recorded on this site's routes.
func (s Site) Label() string {
	if s.SharedLabel != "" {
		return s.SharedLabel
	}
	return strings.ToUpper(s.Code)
}

// SlugPrefix returns the slug prefix for this site's routes.
func (s Site) SlugPrefix() string {
	if s.SharedLabel != "" {
		return strings.ToLower(s.SharedLabel)
	}
	return strings.ToLower(s.Code)
}

// RootURL returns the sub-site root.
func (s Site) RootURL() string {
	return fmt.Sprintf("https://%s.transport-fc.eu/", s.Code)
}

const (
	wroCommonListing = "https://wro.transport-fc.eu/rozklady-jazdy/"
	wro5Listing      = "https://wro5.transport-fc.eu/rozklady-jazdy/"
)

func lcjSeeds(code string) []string {
	base := fmt.Sprintf("https://%s.transport-fc.eu/", code)
	return []string{base, base + "trasy/", base + "rozklady-jazdy/"}
}

// Defaults returns the built-in carrier table. Order matters: it is the
// collection order, and shared-listing sites are collected on first hit.
func Defaults() []Site {
	sites := []Site{
		{Code: "szz1", Mode: ModeProbe},
		{Code: "poz2", Mode: ModeProbe},
		{Code: "poz1", Mode: ModeProbe},
		{Code: "ktw1", Mode: ModeProbe},
		{Code: "ktw3", Mode: ModeProbe},
		{Code: "ktw5", Mode: ModeProbe},
	}
	for _, code := range []string{"wro1", "wro2", "wro3", "wro4"} {
		sites = append(sites, Site{
			Code:        code,
			Mode:        ModeListing,
			Listing:     wroCommonListing,
			SharedLabel: "WRO",
		})
	}
	sites = append(sites, Site{Code: "wro5", Mode: ModeListing, Listing: wro5Listing})
	for _, code := range []string{"lcj2", "lcj3", "lcj4"} {
		sites = append(sites, Site{Code: code, Mode: ModeCrawl, Seeds: lcjSeeds(code)})
	}
	return sites
}

// Codes returns the carrier codes of the given table, used for FC label
// detection in PDF titles and URLs.
func Codes(sites []Site) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		out = append(out, s.Code)
	}
	return out
}

// siteYAML is the sites-file representation of one entry.
type siteYAML struct {
	Code        string   `yaml:"code"`
	Mode        string   `yaml:"mode"`
	Listing     string   `yaml:"listing,omitempty"`
	Seeds       []string `yaml:"seeds,omitempty"`
	SharedLabel string   `yaml:"shared_label,omitempty"`
}

// Load reads a site table from a YAML file. An empty path returns Defaults.
func Load(path string) ([]Site, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "site: read table %s", path)
	}

	var wrapper struct {
		Sites []siteYAML `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "site: parse table")
	}
	if len(wrapper.Sites) == 0 {
		return nil, eris.Errorf("site: table %s defines no sites", path)
	}

	out := make([]Site, 0, len(wrapper.Sites))
	for _, sy := range wrapper.Sites {
		if sy.Code == "" {
			return nil, eris.New("site: entry missing code")
		}
		mode, err := ParseMode(sy.Mode)
		if err != nil {
			return nil, err
		}
		s := Site{
			Code:        strings.ToLower(sy.Code),
			Mode:        mode,
			Listing:     sy.Listing,
			Seeds:       sy.Seeds,
			SharedLabel: sy.SharedLabel,
		}
		switch mode {
		case ModeListing:
			if s.Listing == "" {
				return nil, eris.Errorf("site: %s is mode listing but has no listing url", s.Code)
			}
		case ModeCrawl:
			if len(s.Seeds) == 0 {
				return nil, eris.Errorf("site: %s is mode crawl but has no seeds", s.Code)
			}
		}
		out = append(out, s)
	}
	return out, nil
}
