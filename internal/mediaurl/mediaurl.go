package mediaurl

import (
	"net/url"
	"strings"
)

const PathPrefix = "/usercontent/"

// Object returns the public URL of a stored blob key.
func Object(baseURL, key string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return PathPrefix + key
	}
	if strings.HasSuffix(baseURL, strings.TrimRight(PathPrefix, "/")) {
		return baseURL + "/" + key
	}
	return baseURL + PathPrefix + key
}

// ParseObjectKey recovers the blob key from a URL built by Object.
func ParseObjectKey(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	path := u.Path
	if path == "" {
		path = raw
	}

	idx := strings.Index(path, PathPrefix)
	if idx < 0 {
		return "", false
	}

	key := path[idx+len(PathPrefix):]
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
