package orders

import (
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/statuses"
)

var validNext = map[string]map[string]bool{
	key(statuses.Pending):    {key(statuses.Processing): true, key(statuses.Canceled): true},
	key(statuses.Processing): {key(statuses.Completed): true},
	key(statuses.Completed):  {},
	key(statuses.Canceled):   {},
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// CanTransition compares status names case-insensitively. Names outside the
// well-known lifecycle never transition.
func CanTransition(from, to string) bool {
	return validNext[key(from)][key(to)]
}
