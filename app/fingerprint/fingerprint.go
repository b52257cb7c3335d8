// Package fingerprint computes request identities used to drop duplicate
// crawl requests. The identity of a request is its canonical method, URL and
// selected headers combined with the metadata fields that change how a page is
// labelled downstream, so the same URL crawled for two categories is fetched
// twice while a repeated request for the same category is not.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/lysyi3m/product-comb/app/product"
)

// MetadataKeys are the only metadata fields that take part in a fingerprint.
var MetadataKeys = []string{
	product.MetaCategory,
	product.MetaGender,
	product.MetaConsumerLifestage,
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Meta    map[string]string
}

type options struct {
	headers []string
}

type Option func(*options)

// IncludeHeaders adds the named request headers to the base fingerprint.
func IncludeHeaders(names ...string) Option {
	return func(o *options) {
		for _, n := range names {
			o.headers = append(o.headers, http.CanonicalHeaderKey(n))
		}
	}
}

// Fingerprint returns the lowercase hex SHA-1 identity of req.
func Fingerprint(req Request, opts ...Option) (string, error) {
	base, err := Base(req, opts...)
	if err != nil {
		return "", err
	}

	combined := struct {
		Fingerprint string            `json:"fingerprint"`
		Metadata    map[string]string `json:"metadata"`
	}{
		Fingerprint: base,
		Metadata:    filterMeta(req.Meta),
	}

	// encoding/json writes map keys in sorted order
	data, err := json.Marshal(combined)
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Base returns the fingerprint of the request alone, without metadata.
func Base(req Request, opts ...Option) (string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	canonical, err := CanonicalURL(req.URL)
	if err != nil {
		return "", err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	h := sha1.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(canonical))

	if len(o.headers) > 0 {
		names := append([]string(nil), o.headers...)
		sort.Strings(names)
		for _, name := range names {
			values := req.Headers.Values(name)
			if len(values) == 0 {
				continue
			}
			h.Write([]byte{0})
			h.Write([]byte(strings.ToLower(name)))
			for _, v := range values {
				h.Write([]byte{0})
				h.Write([]byte(v))
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalURL lowercases scheme and host, drops the fragment and sorts
// query parameters. Blank query values are kept.
func CanonicalURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty url")
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = b.String()

	return u.String(), nil
}

func filterMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(MetadataKeys))
	for _, k := range MetadataKeys {
		if v, ok := meta[k]; ok {
			out[k] = v
		}
	}
	return out
}
