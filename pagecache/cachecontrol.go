package pagecache

import (
	"strconv"
	"strings"
	"time"
)

type CacheControl struct {
	m map[string]string
}

func ParseCacheControl(header string) CacheControl {
	m := make(map[string]string)
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		name, val, _ := strings.Cut(directive, "=")
		m[strings.ToLower(name)] = strings.Trim(val, `"`)
	}
	return CacheControl{m}
}

func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.m[directive]
	return val, ok
}

func (c CacheControl) Has(directive string) bool {
	_, ok := c.m[directive]
	return ok
}

// MaxAge returns the shared cache lifetime: s-maxage if present, max-age otherwise.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	for _, directive := range []string{"s-maxage", "max-age"} {
		if val, ok := c.m[directive]; ok {
			if seconds, err := strconv.Atoi(val); err == nil {
				return time.Duration(seconds) * time.Second, true
			}
		}
	}
	return 0, false
}
