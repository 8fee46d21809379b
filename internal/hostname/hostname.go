// Package hostname derives public subdomains for hosted applications.
//
// A subdomain has the shape "{app}.{owner}.{base}", where app and owner are DNS-safe
// slugs of the application and owner display names.
package hostname

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultBaseDomain = "hostingroble.com"

	// MaxLabelLength bounds each generated slug label.
	MaxLabelLength = 20
)

// ErrEmptySlug is returned when a name slugifies to nothing.
var ErrEmptySlug = errors.New("name does not contain any usable characters")

var (
	whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9_-]`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases text, strips diacritics and reduces it to [a-z0-9_-] with single
// hyphens and no leading or trailing hyphen. The result may be empty.
func Slugify(text string) string {
	s := strings.ToLower(text)
	s = stripMarks(s)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = disallowed.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Generator builds subdomains under a fixed base domain.
type Generator struct {
	base string
}

func NewGenerator(baseDomain string) *Generator {
	if baseDomain == "" {
		baseDomain = DefaultBaseDomain
	}
	return &Generator{base: strings.ToLower(strings.Trim(baseDomain, "."))}
}

func (g *Generator) BaseDomain() string { return g.base }

// Generate returns "{app}.{owner}.{base}". Both names must produce a non-empty slug.
// No uniqueness is enforced: identical slugs collide.
func (g *Generator) Generate(appName, ownerName string) (string, error) {
	appSlug := Slugify(appName)
	if appSlug == "" {
		return "", fmt.Errorf("application name %q: %w", appName, ErrEmptySlug)
	}
	ownerSlug := Slugify(ownerName)
	if ownerSlug == "" {
		return "", fmt.Errorf("owner name %q: %w", ownerName, ErrEmptySlug)
	}

	return truncate(appSlug) + "." + truncate(ownerSlug) + "." + g.base, nil
}

// truncate cuts at MaxLabelLength bytes; slugs are ASCII so bytes are characters. A
// hyphen at the cut is kept.
func truncate(slug string) string {
	if len(slug) > MaxLabelLength {
		return slug[:MaxLabelLength]
	}
	return slug
}

// URL prefixes domain with a scheme.
func URL(domain string, https bool) string {
	if https {
		return "https://" + domain
	}
	return "http://" + domain
}

// AppLabel returns the first label of a generated domain.
func AppLabel(domain string) (string, bool) {
	return label(domain, 0)
}

// OwnerLabel returns the second label of a generated domain.
func OwnerLabel(domain string) (string, bool) {
	return label(domain, 1)
}

func label(domain string, index int) (string, bool) {
	parts := strings.Split(domain, ".")
	if len(parts) < 3 {
		return "", false
	}
	return parts[index], true
}
