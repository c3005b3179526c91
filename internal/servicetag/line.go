package servicetag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field declares one service-specific attribute and its validator rule.
type Field struct {
	Name    string
	Rule    string
	Numeric bool
}

// Line is the configuration of one service line. All lines share the same
// role workflow and differ only by tag, names and attribute schema.
type Line struct {
	Key               string
	Tag               int
	SubscriptionTitle string
	Fields            []Field

	// serviceType resolves the credit allocator's endpoint identifier from
	// the validated attributes.
	serviceType func(attrs map[string]interface{}) string
}

// DisplayName is the name written to the role's mirror row.
func (l *Line) DisplayName() string {
	return ranges[l.Tag].DisplayName
}

// Range returns the client-number range owned by the line's tag.
func (l *Line) Range() Range {
	return ranges[l.Tag]
}

// CreditServiceType returns the endpoint identifier charged for a role with attrs.
func (l *Line) CreditServiceType(attrs map[string]interface{}) string {
	return l.serviceType(attrs)
}

var validate = validator.New()

// SanitizeAttributes keeps only declared attributes, coerces numeric strings
// and validates the result against the line's schema.
func (l *Line) SanitizeAttributes(in map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(l.Fields))
	rules := make(map[string]interface{}, len(l.Fields))

	for _, f := range l.Fields {
		rules[f.Name] = f.Rule
		v, ok := in[f.Name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v = s
			if f.Numeric {
				n, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("%s must be a number", f.Name)
				}
				v = n
			}
		}
		out[f.Name] = v
	}

	if errs := validate.ValidateMap(out, rules); len(errs) > 0 {
		return nil, formatErrors(errs)
	}

	if lo, ok := out["salary_min"].(float64); ok {
		if hi, ok := out["salary_max"].(float64); ok && lo > hi {
			return nil, fmt.Errorf("salary_min must not exceed salary_max")
		}
	}

	return out, nil
}

func formatErrors(errs map[string]interface{}) error {
	fields := make([]string, 0, len(errs))
	for name := range errs {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, name := range fields {
		if verrs, ok := errs[name].(validator.ValidationErrors); ok && len(verrs) > 0 {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", name, verrs[0].Tag()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s is invalid", name))
	}
	return fmt.Errorf("invalid attributes: %s", strings.Join(msgs, "; "))
}

func fixed(serviceType string) func(map[string]interface{}) string {
	return func(map[string]interface{}) string { return serviceType }
}

var salaryFields = []Field{
	{Name: "salary_min", Rule: "omitempty,min=0", Numeric: true},
	{Name: "salary_max", Rule: "omitempty,min=0", Numeric: true},
}

var lines = []*Line{
	{
		Key:               "cv-sourcing",
		Tag:               CVSourcing,
		SubscriptionTitle: TitleCVSourcing,
		Fields: append([]Field{
			{Name: "cvs_required", Rule: "required,min=1,max=50", Numeric: true},
			{Name: "seniority", Rule: "omitempty,oneof=junior mid senior lead"},
			{Name: "skills", Rule: "omitempty,max=500"},
		}, salaryFields...),
		serviceType: fixed(ServiceTypeCVSourcing),
	},
	{
		Key:               "prequalification",
		Tag:               Prequalification,
		SubscriptionTitle: TitlePrequalification,
		Fields: append([]Field{
			{Name: "candidates_required", Rule: "required,min=1,max=25", Numeric: true},
			{Name: "screening_questions", Rule: "required,min=1,max=2000"},
		}, salaryFields...),
		serviceType: fixed(ServiceTypePrequalification),
	},
	{
		Key:               "direct",
		Tag:               Direct360,
		SubscriptionTitle: TitleDirect,
		Fields: append([]Field{
			{Name: "job_description", Rule: "required,min=20,max=10000"},
			{Name: "hiring_manager", Rule: "omitempty,max=120"},
			{Name: "employment_type", Rule: "omitempty,oneof=permanent contract temporary"},
		}, salaryFields...),
		serviceType: fixed(ServiceTypeDirect),
	},
	{
		Key:               "lead-generation",
		Tag:               LeadGeneration,
		SubscriptionTitle: TitleLeadGeneration,
		Fields: []Field{
			{Name: "target", Rule: "required,oneof=job industry"},
			{Name: "leads_required", Rule: "required,min=1,max=500", Numeric: true},
			{Name: "industry", Rule: "omitempty,max=120"},
			{Name: "job_title", Rule: "omitempty,max=120"},
			{Name: "company_size", Rule: "omitempty,oneof=1-10 11-50 51-200 201-1000 1000+"},
		},
		serviceType: func(attrs map[string]interface{}) string {
			if attrs["target"] == "industry" {
				return ServiceTypeLeadGenerationIndustry
			}
			return ServiceTypeLeadGenerationJob
		},
	},
}

// Lines returns every service line in tag order.
func Lines() []*Line {
	return lines
}

// LineByKey finds a line by its URL segment.
func LineByKey(key string) (*Line, bool) {
	for _, l := range lines {
		if l.Key == key {
			return l, true
		}
	}
	return nil, false
}
