package expr

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// newRecordValue converts a nested map[string]interface{} (e.g. the "record" or "trigger"
// binding) into a starlark value supporting dotted attribute access — record.total, per §4.1's
// grammar, which never requires dict-style indexing, iteration, or whole-record comparison.
// Built on go.starlark.net's own starlarkstruct.Struct so attribute lookup, equality, and
// hashing come from the library rather than a hand-rolled HasAttrs/Mapping/Iterable wrapper.
func newRecordValue(data map[string]interface{}) *starlarkstruct.Struct {
	fields := make(starlark.StringDict, len(data))
	for k, v := range data {
		fields[k] = toStarlark(v)
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields)
}
