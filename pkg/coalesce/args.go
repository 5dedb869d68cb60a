package coalesce

import "reflect"

// argsEqual breaks a structural-hash collision with a real equality
// check, per the Design Notes' requirement that dedup not assume
// primitive, directly-comparable argument types.
func argsEqual(a, b []any) bool {
	return reflect.DeepEqual(a, b)
}
