package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	resourceSuffix = regexp.MustCompile(`\s*\((Mixer|Oven) #(\d+)\)\s*$`)
)

// BaseLabel renders the human readable batch code: "ROUND VANILLA 18CM", or
// "#A007" for custom tins.
func BaseLabel(shape Shape, flavor Flavor, sizeCM int, customSeq int) string {
	if shape == ShapeCustom {
		return fmt.Sprintf("#A%03d", customSeq)
	}

	return fmt.Sprintf("%s %s %dCM", strings.ToUpper(string(shape)), strings.ToUpper(string(flavor)), sizeCM)
}

// StripResourceSuffix removes a trailing "(Mixer #n)" or "(Oven #n)"
func StripResourceSuffix(label string) string {
	return resourceSuffix.ReplaceAllString(label, "")
}

// WithMixerSuffix marks a label with the mixer it sits in
func WithMixerSuffix(label string, mixer int) string {
	return fmt.Sprintf("%s (Mixer #%d)", StripResourceSuffix(label), mixer)
}

// WithOvenSuffix marks a label with the oven it bakes in
func WithOvenSuffix(label string, oven int) string {
	return fmt.Sprintf("%s (Oven #%d)", StripResourceSuffix(label), oven)
}

// ParseMixerSuffix recovers the mixer number from a label. Rows written before
// assignments had their own columns only carry it here.
func ParseMixerSuffix(label string) (int, bool) {
	m := resourceSuffix.FindStringSubmatch(label)

	if m == nil || m[1] != "Mixer" {
		return 0, false
	}

	n, err := strconv.Atoi(m[2])

	if err != nil {
		return 0, false
	}

	return n, true
}
