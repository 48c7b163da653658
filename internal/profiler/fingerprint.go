package profiler

import "regexp"

// componentLibrary identifies a UI component library (as distinct from
// the page's underlying framework) by its class-naming convention, so
// resolution can favour CSS-class locators on pages that use one of
// these — supplemented from the original implementation's
// engine/framework_hints.py FRAMEWORK_SIGNATURES table, which this
// engine's distillation had dropped.
type componentLibrary struct {
	name     string
	patterns []*regexp.Regexp
}

var componentLibraries = []componentLibrary{
	{name: "mui", patterns: compile(`Mui[A-Z]`, `css-[a-z0-9]+-MuiBox`)},
	{name: "ant-design", patterns: compile(`ant-[a-z]+`, `anticon`)},
	{name: "chakra", patterns: compile(`chakra-[a-z]+`)},
	{name: "bootstrap", patterns: compile(`^btn-`, `^form-control`, `^nav-`, `^dropdown`)},
	{name: "radix", patterns: compile(`radix-`, `data-radix-`)},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// detectComponentLibrary scans a raw HTML/class-attribute blob for a
// known UI library's naming convention. It returns "" when nothing
// matches, which is the common case and not treated as an error.
func detectComponentLibrary(rawHTML string) string {
	for _, lib := range componentLibraries {
		for _, pattern := range lib.patterns {
			if pattern.MatchString(rawHTML) {
				return lib.name
			}
		}
	}
	return ""
}

// frameworkSignatures provides a cheap framework guess from raw markup
// alone, consulted when GetProfile's snapshot probe names no framework,
// grounded on the same original-source signatures file.
var frameworkSignatures = []struct {
	framework string
	pattern   *regexp.Regexp
}{
	{"next", regexp.MustCompile(`__NEXT_DATA__`)},
	{"nuxt", regexp.MustCompile(`__NUXT__`)},
	{"angular", regexp.MustCompile(`ng-version`)},
	{"react", regexp.MustCompile(`data-reactroot`)},
	{"vue", regexp.MustCompile(`data-v-app`)},
}

// fingerprintFramework guesses a framework label from a raw HTML
// document. GetProfile calls it only after its snapshot script has
// reported no framework, on markup fetched by a second Evaluate call.
func fingerprintFramework(rawHTML string) string {
	for _, sig := range frameworkSignatures {
		if sig.pattern.MatchString(rawHTML) {
			return sig.framework
		}
	}
	return ""
}
