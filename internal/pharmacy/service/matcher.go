package service

import "strings"

// NameMatcher decides whether two drug or allergen names refer to the same
// substance.
type NameMatcher interface {
	Match(a, b string) bool
}

// SubstringMatcher matches when either name contains the other,
// case-insensitively. It prefers false positives over missed matches.
type SubstringMatcher struct{}

// Match implements NameMatcher.
func (SubstringMatcher) Match(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// DrugClassifier places a medication name in a drug class.
type DrugClassifier interface {
	IsOpioid(name string) bool
	IsBenzodiazepine(name string) bool
}

// DefaultOpioids are matched by substring by NameListClassifier.
var DefaultOpioids = []string{
	"oxycodone", "hydrocodone", "morphine", "fentanyl", "codeine",
	"tramadol", "hydromorphone", "oxymorphone", "methadone", "buprenorphine",
}

// DefaultBenzodiazepines are matched by substring by NameListClassifier.
var DefaultBenzodiazepines = []string{
	"alprazolam", "lorazepam", "clonazepam", "diazepam",
	"temazepam", "triazolam", "chlordiazepoxide", "oxazepam",
}

// NameListClassifier classifies by case-insensitive substring against fixed
// name lists.
type NameListClassifier struct {
	Opioids         []string
	Benzodiazepines []string
}

// NewNameListClassifier returns a classifier over the default lists.
func NewNameListClassifier() *NameListClassifier {
	return &NameListClassifier{
		Opioids:         DefaultOpioids,
		Benzodiazepines: DefaultBenzodiazepines,
	}
}

// IsOpioid implements DrugClassifier.
func (c *NameListClassifier) IsOpioid(name string) bool {
	return containsAny(name, c.Opioids)
}

// IsBenzodiazepine implements DrugClassifier.
func (c *NameListClassifier) IsBenzodiazepine(name string) bool {
	return containsAny(name, c.Benzodiazepines)
}

func containsAny(name string, list []string) bool {
	name = strings.ToLower(name)
	for _, s := range list {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}
