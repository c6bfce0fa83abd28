package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/teefetch/interfaces"
)

// parseHeaders turns repeated "Name: value" or "name=value" flags into a header map.
func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := cutHeader(v)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected name=value or 'Name: value'", v)
		}
		headers[name] = value
	}
	return headers, nil
}

func cutHeader(v string) (string, string, bool) {
	colon := strings.Index(v, ":")
	equals := strings.Index(v, "=")

	switch {
	case colon < 0 && equals < 0:
		return "", "", false
	case equals < 0 || (colon >= 0 && colon < equals):
		return strings.TrimSpace(v[:colon]), strings.TrimSpace(v[colon+1:]), true
	default:
		return strings.TrimSpace(v[:equals]), v[equals+1:], true
	}
}

// parseMeasurements turns repeated "index=hex" flags into expected measurements.
func parseMeasurements(values []string) (interfaces.Measurements, error) {
	measurements := make(interfaces.Measurements, len(values))
	for _, v := range values {
		idxStr, value, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid measurement %q, expected index=hex", v)
		}

		idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid measurement index %q", idxStr)
		}

		value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
		if _, err := hex.DecodeString(value); err != nil || value == "" {
			return nil, fmt.Errorf("invalid measurement value for index %d", idx)
		}

		measurements[idx] = value
	}
	return measurements, nil
}

// instanceEndpoint builds the base URL of a listener of the instance at host.
// A host that already carries a scheme is used as is.
func instanceEndpoint(host string, port int) string {
	if strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/")
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}
