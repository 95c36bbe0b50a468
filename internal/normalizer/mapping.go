package normalizer

import (
	"slices"
	"strings"

	"github.com/tphakala/vidguard/internal/moderation"
)

// CategoryOther is the fallback category of every check.
const CategoryOther = "other"

// Rule maps native labels containing Match to Category.
type Rule struct {
	Match    string
	Category string
}

// Mapping translates one check's native labels to its fixed category enum.
// Rules are evaluated in order; the first match wins.
type Mapping struct {
	Check      moderation.CheckType
	Categories []string
	Rules      []Rule
}

// Category maps a native label. Labels equal to a category map to it
// directly, anything unmatched maps to CategoryOther.
func (m Mapping) Category(label string) string {
	key := canonicalLabel(label)
	if key == "" {
		return CategoryOther
	}
	if slices.Contains(m.Categories, key) {
		return key
	}
	for _, r := range m.Rules {
		if strings.Contains(key, r.Match) {
			return r.Category
		}
	}
	return CategoryOther
}

func canonicalLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(label)
}

// DefaultMappings returns the mappings of the built-in checks.
func DefaultMappings() []Mapping {
	return []Mapping{
		{
			Check:      moderation.CheckNudity,
			Categories: []string{"full", "partial", "suggestive", CategoryOther},
			Rules: []Rule{
				{"genitalia", "full"},
				{"anus", "full"},
				{"explicit", "full"},
				{"porn", "full"},
				{"nude", "full"},
				{"breast", "partial"},
				{"buttocks", "partial"},
				{"topless", "partial"},
				{"covered", "suggestive"},
				{"sexy", "suggestive"},
				{"lingerie", "suggestive"},
				{"swimwear", "suggestive"},
			},
		},
		{
			Check:      moderation.CheckCopyright,
			Categories: []string{"audio", "visual", CategoryOther},
			Rules: []Rule{
				{"audio", "audio"},
				{"music", "audio"},
				{"song", "audio"},
				{"soundtrack", "audio"},
				{"video", "visual"},
				{"visual", "visual"},
				{"image", "visual"},
				{"logo", "visual"},
				{"watermark", "visual"},
			},
		},
		{
			Check:      moderation.CheckFraud,
			Categories: []string{"scam", "phishing", "impersonation", "misleading", CategoryOther},
			Rules: []Rule{
				{"phish", "phishing"},
				{"credential", "phishing"},
				{"link", "phishing"},
				{"impersonat", "impersonation"},
				{"fake_account", "impersonation"},
				{"celebrity", "impersonation"},
				{"scam", "scam"},
				{"giveaway", "scam"},
				{"investment", "scam"},
				{"crypto", "scam"},
				{"mislead", "misleading"},
				{"false_claim", "misleading"},
				{"clickbait", "misleading"},
			},
		},
		{
			Check:      moderation.CheckBlur,
			Categories: []string{"violence", "gesture", "pii", CategoryOther},
			Rules: []Rule{
				{"violen", "violence"},
				{"gore", "violence"},
				{"blood", "violence"},
				{"weapon", "violence"},
				{"gesture", "gesture"},
				{"middle_finger", "gesture"},
				{"obscene", "gesture"},
				{"face", "pii"},
				{"license_plate", "pii"},
				{"document", "pii"},
				{"phone_number", "pii"},
				{"email", "pii"},
			},
		},
	}
}
