package core

// CheckVersion is the optimistic-concurrency admission check for updates. A nil supplied
// version skips the check. The store repeats the comparison atomically on save.
func CheckVersion(supplied *int64, current int64) error {
	if supplied == nil {
		return nil
	}
	if *supplied != current {
		return ErrConcurrencyConflict
	}
	return nil
}
