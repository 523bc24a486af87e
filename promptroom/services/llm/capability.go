package llm

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Family is a closed enumeration of model families. Request shaping is
// looked up per family, never inferred from the identifier at call time.
type Family string

const (
	FamilyStandard  Family = "standard"
	FamilyReasoning Family = "reasoning"
	FamilyFlagship  Family = "flagship"
)

// Profile is the request-shaping policy for one family.
type Profile struct {
	// SystemChannel: the family accepts a separate system-role turn.
	SystemChannel bool
	// CustomTemperature: the family accepts a temperature override.
	CustomTemperature bool
	// TokenLimitParam names the token-limit request field.
	TokenLimitParam string
	// OmitTokenLimit: no explicit token limit is sent at all.
	OmitTokenLimit bool
}

var profiles = map[Family]Profile{
	FamilyStandard: {
		SystemChannel:     true,
		CustomTemperature: true,
		TokenLimitParam:   "max_tokens",
	},
	FamilyReasoning: {
		SystemChannel:     false,
		CustomTemperature: false,
		TokenLimitParam:   "max_completion_tokens",
		OmitTokenLimit:    true,
	},
	FamilyFlagship: {
		SystemChannel:     true,
		CustomTemperature: false,
		TokenLimitParam:   "max_completion_tokens",
	},
}

// CapabilityTable resolves a model identifier to its family by longest
// matching prefix. Identifiers matching nothing are standard.
type CapabilityTable struct {
	prefixes map[string]Family
}

// DefaultCapabilityTable covers the hosted families the service targets.
func DefaultCapabilityTable() *CapabilityTable {
	return &CapabilityTable{prefixes: map[string]Family{
		"o1":      FamilyReasoning,
		"o3":      FamilyReasoning,
		"o4-mini": FamilyReasoning,
		"gpt-5":   FamilyFlagship,
	}}
}

type capabilityFile struct {
	Families map[string]struct {
		Prefixes []string `yaml:"prefixes"`
	} `yaml:"families"`
}

// LoadCapabilityTable reads a yaml prefix table and validates every family
// tag against the closed enumeration before the table is used.
func LoadCapabilityTable(path string) (*CapabilityTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file capabilityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid capability config: %w", err)
	}
	table := &CapabilityTable{prefixes: map[string]Family{}}
	for name, entry := range file.Families {
		fam := Family(name)
		if _, ok := profiles[fam]; !ok {
			return nil, fmt.Errorf("unknown model family %q in %s", name, path)
		}
		for _, p := range entry.Prefixes {
			if p == "" {
				return nil, fmt.Errorf("empty prefix for family %q in %s", name, path)
			}
			table.prefixes[p] = fam
		}
	}
	return table, nil
}

// Resolve returns the family for a model identifier.
func (t *CapabilityTable) Resolve(model string) Family {
	// Longest prefix wins, so "o4-mini" beats a hypothetical "o4" entry.
	keys := make([]string, 0, len(t.prefixes))
	for p := range t.prefixes {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, p := range keys {
		if strings.HasPrefix(model, p) {
			return t.prefixes[p]
		}
	}
	return FamilyStandard
}

func (t *CapabilityTable) Profile(model string) Profile {
	return profiles[t.Resolve(model)]
}

func (t *CapabilityTable) IsReasoningFamily(model string) bool {
	return t.Resolve(model) == FamilyReasoning
}

func (t *CapabilityTable) SupportsCustomTemperature(model string) bool {
	return t.Profile(model).CustomTemperature
}

func (t *CapabilityTable) TokenLimitParam(model string) string {
	return t.Profile(model).TokenLimitParam
}

const (
	DefaultTemperature = 0.7
	DefaultTokenLimit  = 1000

	// DefaultSystemPrompt is used when a room's prompt is blank.
	DefaultSystemPrompt = "Ты — полезный ассистент в групповом чате."
)

// SanitizeTemperature clamps to [0, 2]; NaN and infinities fall back to the
// default.
func SanitizeTemperature(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return DefaultTemperature
	}
	if value < 0 {
		return 0
	}
	if value > 2 {
		return 2
	}
	return value
}

// Message is one role-tagged turn of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is a persisted message reduced to what the request needs.
type HistoryEntry struct {
	SenderName string
	Text       string
}

func formatTurn(e HistoryEntry) string {
	return e.SenderName + ": " + e.Text
}

// BuildRequestMessages produces the ordered turn sequence for a completion
// request. Families with a system channel get a leading system turn;
// reasoning families get the prompt prepended to the first user turn
// instead, separated by a blank line.
func BuildRequestMessages(systemPrompt string, history []HistoryEntry, reasoning bool) []Message {
	prompt := strings.TrimSpace(systemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	if !reasoning {
		msgs := make([]Message, 0, len(history)+1)
		msgs = append(msgs, Message{Role: "system", Content: prompt})
		for _, e := range history {
			msgs = append(msgs, Message{Role: "user", Content: formatTurn(e)})
		}
		return msgs
	}

	if len(history) == 0 {
		return []Message{{Role: "user", Content: prompt}}
	}
	msgs := make([]Message, 0, len(history))
	msgs = append(msgs, Message{Role: "user", Content: prompt + "\n\n" + formatTurn(history[0])})
	for _, e := range history[1:] {
		msgs = append(msgs, Message{Role: "user", Content: formatTurn(e)})
	}
	return msgs
}
