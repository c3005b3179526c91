// Package servicetag holds the static service-line tables: the client-number
// range owned by each service tag and the configuration of each service line.
package servicetag

import (
	"fmt"
	"sort"
)

// Service tags identifying the four recruitment service lines.
const (
	CVSourcing       = 1000
	Prequalification = 2000
	Direct360        = 3000
	LeadGeneration   = 4000
)

// Range is the closed interval of client numbers owned by a service tag.
type Range struct {
	Tag         int    `json:"service_tag"`
	Min         int    `json:"min"`
	Max         int    `json:"max"`
	DisplayName string `json:"name"`
}

// Contains reports whether n falls inside the range.
func (r Range) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

var ranges = map[int]Range{
	CVSourcing:       {Tag: CVSourcing, Min: 0, Max: 1000, DisplayName: "CV Sourcing"},
	Prequalification: {Tag: Prequalification, Min: 1001, Max: 2000, DisplayName: "Pre-qualification"},
	Direct360:        {Tag: Direct360, Min: 2001, Max: 3000, DisplayName: "360 Direct"},
	LeadGeneration:   {Tag: LeadGeneration, Min: 3001, Max: 4000, DisplayName: "Lead Generation"},
}

// Lookup returns the range owned by tag.
func Lookup(tag int) (Range, bool) {
	r, ok := ranges[tag]
	return r, ok
}

// All returns every range ordered by tag.
func All() []Range {
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// DisplayName returns the fixed service-line name written to the roles table.
func DisplayName(tag int) (string, error) {
	r, ok := ranges[tag]
	if !ok {
		return "", fmt.Errorf("unknown service tag %d", tag)
	}
	return r.DisplayName, nil
}

// Endpoint identifiers understood by the credit allocator.
const (
	ServiceTypeCVSourcing             = "cv-sourcing"
	ServiceTypePrequalification       = "prequalification"
	ServiceTypeDirect                 = "direct"
	ServiceTypeLeadGenerationJob      = "lead-generation-job"
	ServiceTypeLeadGenerationIndustry = "lead-generation-industry"
)

// Subscription plan titles.
const (
	TitleCVSourcing       = "CV Sourcing"
	TitlePrequalification = "Prequalification"
	TitleDirect           = "360/Direct"
	TitleLeadGeneration   = "Lead Generation"
)

var subscriptionTitles = map[string]string{
	ServiceTypeCVSourcing:             TitleCVSourcing,
	ServiceTypePrequalification:       TitlePrequalification,
	ServiceTypeDirect:                 TitleDirect,
	ServiceTypeLeadGenerationJob:      TitleLeadGeneration,
	ServiceTypeLeadGenerationIndustry: TitleLeadGeneration,
}

// SubscriptionTitle maps an endpoint identifier onto the subscription title
// whose credits it consumes. Unknown identifiers are reported, not passed through.
func SubscriptionTitle(serviceType string) (string, bool) {
	title, ok := subscriptionTitles[serviceType]
	return title, ok
}

// SubscriptionTitles lists every plan title, in tag order.
func SubscriptionTitles() []string {
	return []string{TitleCVSourcing, TitlePrequalification, TitleDirect, TitleLeadGeneration}
}
