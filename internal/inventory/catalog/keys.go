package catalog

import "fmt"

func checkUnique[T any](items []T, key func(T) string) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := key(it)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSKU, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
