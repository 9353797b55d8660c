package transport

import (
	"net/http"
	"strings"
	"time"
)

// KeyValue is an ordered name/value pair used for cookies and custom headers.
type KeyValue struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Options are passed opaquely from the connection to the driver.
type Options struct {
	URL              string
	SubProtocol      string
	Cookies          []KeyValue
	Headers          []KeyValue
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

// Default values for optional Options fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultReadLimit        = 32 << 20
)

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadLimit == 0 {
		o.ReadLimit = DefaultReadLimit
	}
	return o
}

// Clone returns a copy of o that shares no slices with it.
func (o Options) Clone() Options {
	o.Cookies = append([]KeyValue(nil), o.Cookies...)
	o.Headers = append([]KeyValue(nil), o.Headers...)
	return o
}

// Header builds the HTTP upgrade request header: custom headers in order,
// then a single Cookie header carrying every cookie.
func (o Options) Header() http.Header {
	header := http.Header{}
	for _, h := range o.Headers {
		header.Add(h.Key, h.Value)
	}

	if len(o.Cookies) > 0 {
		parts := make([]string, 0, len(o.Cookies))
		for _, c := range o.Cookies {
			parts = append(parts, (&http.Cookie{Name: c.Key, Value: c.Value}).String())
		}
		header.Set("Cookie", strings.Join(parts, "; "))
	}

	return header
}

// SubProtocols returns the requested sub-protocol list, empty when none is set.
func (o Options) SubProtocols() []string {
	if o.SubProtocol == "" {
		return nil
	}
	return []string{o.SubProtocol}
}
