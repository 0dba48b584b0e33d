package types

// Params holds arbitrary string key/value pairs persisted as jsonb, used for
// click URL parameters and postback parameter snapshots.
type Params map[string]string

// Merge returns a copy of p with values from other layered on top. Keys present
// in other win; keys only in p are kept.
func (p Params) Merge(other Params) Params {
	merged := make(Params, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		if v == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// Get returns the value for key or an empty string.
func (p Params) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}
