package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Keys are dot-separated paths through the json tags of Config, such as
// "twitter.screen_name". Fields tagged secret:"true" are masked on display.

var (
	schemaOnce sync.Once
	schemaKeys map[string]bool
)

func schema() map[string]bool {
	schemaOnce.Do(func() {
		schemaKeys = make(map[string]bool)
		collectKeys("", reflect.TypeOf(Config{}), schemaKeys)
	})
	return schemaKeys
}

func collectKeys(prefix string, t reflect.Type, out map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := joinKey(prefix, name)
		if field.Type.Kind() == reflect.Struct {
			collectKeys(key, field.Type, out)
			continue
		}
		out[key] = field.Tag.Get("secret") == "true"
	}
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// KnownKey reports whether key names a leaf field of Config.
func KnownKey(key string) bool {
	_, ok := schema()[key]
	return ok
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return schema()[key]
}

// SortedKeys returns the keys of flat in lexical order.
func SortedKeys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten turns {"http": {"listen": ":8080"}} into {"http.listen": ":8080"}.
// Empty sections produce no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := joinKey(prefix, k)
			if child, ok := v.(map[string]any); ok {
				walk(key, child)
				continue
			}
			out[key] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		setPath(out, strings.Split(k, "."), v)
	}
	return out
}

func setPath(m map[string]any, path []string, v any) {
	if len(path) == 1 {
		m[path[0]] = v
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[path[0]] = child
	}
	setPath(child, path[1:], v)
}

// MaskSecrets returns a copy of flat with credential values passed through
// Mask.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && IsSecretKey(k) {
			v = Mask(s)
		}
		out[k] = v
	}
	return out
}

// Mask shows only the last 4 characters of a secret, as "***xxxx".
func Mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}
