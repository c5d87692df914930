// Package output renders file events and delivers them to stdout, a file or
// a syslog server.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/code42/code42cli/internal/extraction"
)

// Format selects how events are rendered.
type Format string

const (
	JSON    Format = "JSON"
	RawJSON Format = "RAW-JSON"
	CEF     Format = "CEF"
)

// Formats lists the accepted --format values.
var Formats = []Format{JSON, RawJSON, CEF}

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("invalid choice: %s. (choose from %s)", s, strings.Join(names, ", "))
}

// Render returns a single line for e without a trailing newline.
func (f Format) Render(e extraction.Event) ([]byte, error) {
	switch f {
	case RawJSON:
		return compact(e.Raw)
	case CEF:
		return []byte(renderCEF(e.Fields)), nil
	default:
		return json.Marshal(dropEmpty(e.Fields))
	}
}

func compact(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dropEmpty removes null values, empty strings and empty collections.
func dropEmpty(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t == "" {
				continue
			}
		case []any:
			if len(t) == 0 {
				continue
			}
		case map[string]any:
			if len(t) == 0 {
				continue
			}
		}
		out[k] = v
	}
	return out
}

const (
	cefVendor  = "Code42"
	cefProduct = "Advanced Exfiltration Detection"
	cefVersion = "1"
)

var cefSignatures = map[string]struct{ id, name string }{
	"CREATED":     {"C42200", "Created"},
	"MODIFIED":    {"C42201", "Modified"},
	"DELETED":     {"C42202", "Deleted"},
	"READ_BY_APP": {"C42203", "Read by application"},
	"EMAILED":     {"C42204", "Emailed"},
}

// cefFields maps file event fields onto CEF extension keys.
var cefFields = map[string]string{
	"eventId":            "externalId",
	"deviceUid":          "deviceExternalId",
	"deviceUserName":     "suser",
	"osHostName":         "shost",
	"domainName":         "dvchost",
	"publicIpAddress":    "src",
	"fileName":           "fname",
	"filePath":           "filePath",
	"fileSize":           "fsize",
	"fileType":           "fileType",
	"md5Checksum":        "fileHash",
	"actor":              "suid",
	"processOwner":       "spriv",
	"processName":        "sproc",
	"tabUrl":             "request",
	"exposure":           "reason",
	"syncDestination":    "destinationServiceName",
	"source":             "sourceServiceName",
	"eventTimestamp":     "end",
	"createTimestamp":    "fileCreateTime",
	"modifyTimestamp":    "fileModificationTime",
	"removableMediaName": "cs1",
}

var (
	cefHeaderEscaper    = strings.NewReplacer(`\`, `\\`, `|`, `\|`)
	cefExtensionEscaper = strings.NewReplacer(`\`, `\\`, `=`, `\=`, "\n", `\n`, "\r", `\r`)
)

func renderCEF(fields map[string]any) string {
	eventType, _ := fields["eventType"].(string)
	sig, ok := cefSignatures[eventType]
	if !ok {
		sig.id, sig.name = "C42000", "Exposure"
	}

	var ext []string
	for field, key := range cefFields {
		v, ok := fields[field]
		if !ok || v == nil {
			continue
		}
		s := cefValue(field, v)
		if s == "" {
			continue
		}
		ext = append(ext, key+"="+cefExtensionEscaper.Replace(s))
	}
	sort.Strings(ext)

	return fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
		cefHeaderEscaper.Replace(cefVendor),
		cefHeaderEscaper.Replace(cefProduct),
		cefVersion,
		sig.id,
		cefHeaderEscaper.Replace(sig.name),
		5,
		strings.Join(ext, " "),
	)
}

// cefValue flattens v; timestamps become epoch milliseconds.
func cefValue(field string, v any) string {
	switch t := v.(type) {
	case string:
		if strings.HasSuffix(field, "Timestamp") {
			if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return fmt.Sprint(ts.UnixMilli())
			}
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
