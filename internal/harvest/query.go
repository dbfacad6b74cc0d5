package harvest

import "slices"

const DefaultValueCap = 10

// DefaultAlwaysFull are the time and content dimensions, which are always
// selected in full.
var DefaultAlwaysFull = []string{"Tid", "ContentsCode"}

// Policy bounds how many values a query selects per variable.
type Policy struct {
	// Cap is the maximum number of values selected for a variable that is
	// not always full. Cap <= 0 disables capping.
	Cap        int
	AlwaysFull []string
}

func DefaultPolicy() Policy {
	return Policy{
		Cap:        DefaultValueCap,
		AlwaysFull: slices.Clone(DefaultAlwaysFull),
	}
}

// BuildQuery selects, for every variable in metadata order, either all of
// its values or the last Cap of them. Value order is kept as is.
func BuildQuery(meta TableMetadata, policy Policy) Query {
	query := Query{
		Selections:     make([]Selection, 0, len(meta.Variables)),
		ResponseFormat: ResponseFormatJSON,
	}
	for _, variable := range meta.Variables {
		values := variable.ValueIDs()
		if policy.Cap > 0 &&
			len(values) > policy.Cap &&
			!isAlwaysFull(policy, variable.Code) {
			values = values[len(values)-policy.Cap:]
		}
		query.Selections = append(query.Selections, Selection{
			Code:   variable.Code,
			Values: values,
		})
	}
	return query
}

func isAlwaysFull(policy Policy, code string) bool {
	return slices.Contains(policy.AlwaysFull, code)
}
