package utils

const limitDefault = 1000
const limitMax = 10000

// GetLimit returns the number of rows a query may return. A nil or
// non-positive limit selects the default; larger values are capped.
func GetLimit(limit *int) int {
	if limit != nil && *limit > 0 {
		return min(*limit, limitMax)
	}
	return limitDefault
}
