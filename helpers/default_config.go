package helpers

import "time"

// ConfigDefaultInt gives def for unset or negative config value.
func ConfigDefaultInt(in int, def int) int {
	if in <= 0 {
		return def
	}
	return in
}

func ConfigDefaultStr(inString string, valueIfStringBlank string) string {
	if inString == "" {
		return valueIfStringBlank
	}
	return inString
}

// IntSecondDefault converts config seconds, zero or negative gives def.
func IntSecondDefault(sec int, def time.Duration) time.Duration {
	if sec <= 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}
