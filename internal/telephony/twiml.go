package telephony

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// BuildAbsoluteURL builds a public absolute URL for the given path.
// Priority: configured base > X-Forwarded-* headers > request Host heuristic.
func BuildAbsoluteURL(r *http.Request, base, path string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		proto := r.Header.Get("X-Forwarded-Proto")
		host := r.Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			base = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if base == "" {
		host := r.Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		base = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// StreamURL is BuildAbsoluteURL with the scheme switched to ws/wss.
func StreamURL(r *http.Request, base, path string) string {
	u := BuildAbsoluteURL(r, base, path)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// ConnectStream renders <Connect><Stream url=...> with one <Parameter> per
// non-empty entry in params, in name order.
func ConnectStream(streamURL string, params map[string]string) (string, error) {
	names := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	inner := make([]twiml.Element, 0, len(names))
	for _, k := range names {
		inner = append(inner, &twiml.VoiceParameter{Name: k, Value: params[k]})
	}
	stream := &twiml.VoiceStream{Url: streamURL, InnerElements: inner}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	out, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return "", fmt.Errorf("telephony: build twiml: %w", err)
	}
	return out, nil
}
