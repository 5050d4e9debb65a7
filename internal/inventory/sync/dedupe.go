package sync

// Keyed is a record with a natural key.
type Keyed interface {
	Key() string
}

// Dedupe keeps the last record for each key. Output order follows the
// position where each key first appeared. It also returns how many records
// were discarded and the distinct keys that had duplicates, in the order
// their first duplicate was seen.
func Dedupe[T Keyed](records []T) (unique []T, discarded int, keys []string) {
	index := make(map[string]int, len(records))
	unique = make([]T, 0, len(records))
	collided := make(map[string]bool)

	for _, r := range records {
		k := r.Key()
		if i, ok := index[k]; ok {
			unique[i] = r
			discarded++
			if !collided[k] {
				collided[k] = true
				keys = append(keys, k)
			}
			continue
		}
		index[k] = len(unique)
		unique = append(unique, r)
	}
	return unique, discarded, keys
}
