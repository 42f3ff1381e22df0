package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// appAliases maps spoken names onto canonical application names.
var appAliases = map[string]string{
	"chrome":             "chrome",
	"google chrome":      "chrome",
	"browser":            "chrome",
	"firefox":            "firefox",
	"edge":               "edge",
	"safari":             "safari",
	"notepad":            "notepad",
	"text editor":        "notepad",
	"calculator":         "calculator",
	"calc":               "calculator",
	"spotify":            "spotify",
	"music":              "spotify",
	"vscode":             "vscode",
	"vs code":            "vscode",
	"visual studio code": "vscode",
	"terminal":           "terminal",
	"command prompt":     "terminal",
	"cmd":                "terminal",
	"explorer":           "explorer",
	"file explorer":      "explorer",
	"files":              "explorer",
	"finder":             "explorer",
	"word":               "word",
	"excel":              "excel",
	"powerpoint":         "powerpoint",
	"outlook":            "outlook",
	"slack":              "slack",
	"discord":            "discord",
	"zoom":               "zoom",
	"vlc":                "vlc",
	"paint":              "paint",
	"settings":           "settings",
	"whatsapp":           "whatsapp",
	"whats app":          "whatsapp",
}

var (
	// aliasOrder lists aliases longest first so "google chrome" wins over "chrome".
	aliasOrder = sortedAliases()

	canonicalApps = canonicalNames()

	appVerbRe = regexp.MustCompile(`\b(?:open|launch|start|run|close|quit|exit|kill|terminate)\b(?: (?:up|the|my|app|application|program))*(?: (.+))?$`)
)

// appSource adapts the canonical app list for fuzzy matching.
type appSource []string

func (s appSource) String(i int) string { return s[i] }
func (s appSource) Len() int            { return len(s) }

// lookupApp resolves the application named in normalized text: an exact
// alias anywhere in the object phrase, then a fuzzy near miss on its first
// word, then the object phrase itself unless it is a pronoun.
func lookupApp(text string) (string, bool) {
	m := appVerbRe.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", false
	}
	object := strings.TrimSpace(m[1])
	if isPronoun(firstWord(object)) {
		return "", false
	}

	padded := " " + object + " "
	for _, alias := range aliasOrder {
		if strings.Contains(padded, " "+alias+" ") {
			return appAliases[alias], true
		}
	}

	word := firstWord(object)
	if len(word) >= 4 {
		if matches := fuzzy.FindFrom(word, appSource(canonicalApps)); len(matches) > 0 {
			return canonicalApps[matches[0].Index], true
		}
	}
	return object, true
}

func sortedAliases() []string {
	out := make([]string, 0, len(appAliases))
	for a := range appAliases {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

func canonicalNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range appAliases {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

var pronouns = map[string]bool{
	"it": true, "that": true, "this": true,
	"him": true, "her": true, "them": true,
}

func isPronoun(w string) bool { return pronouns[w] }

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
