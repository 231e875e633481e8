package constraint

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDurationTable reads the compact form "720p=4,6,8;1080p=8". An empty
// string yields nil so callers can fall back to the defaults.
func ParseDurationTable(raw string) (DurationTable, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	table := DurationTable{}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		res, values, ok := strings.Cut(entry, "=")
		res = strings.TrimSpace(res)
		if !ok || res == "" {
			return nil, fmt.Errorf("duration table: malformed entry %q", entry)
		}
		var durations []int
		for _, v := range strings.Split(values, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("duration table: invalid duration %q for %s", v, res)
			}
			durations = append(durations, n)
		}
		if len(durations) == 0 {
			return nil, fmt.Errorf("duration table: no durations for %s", res)
		}
		table[res] = durations
	}
	if len(table) == 0 {
		return nil, nil
	}
	return table, nil
}

// WithVideoDurations returns a copy of rules whose video table is replaced.
// A nil table leaves rules untouched.
func (r Rules) WithVideoDurations(table DurationTable, defaultResolution string) Rules {
	out := make(Rules, len(r))
	for k, v := range r {
		out[k] = v
	}
	if table == nil {
		return out
	}
	video := out[videoKind]
	video.Durations = table
	if _, ok := table[defaultResolution]; ok {
		video.DefaultResolution = defaultResolution
	} else if _, ok := table[video.DefaultResolution]; !ok {
		video.DefaultResolution = smallestKey(table)
	}
	out[videoKind] = video
	return out
}

func smallestKey(table DurationTable) string {
	best := ""
	for k := range table {
		if best == "" || k < best {
			best = k
		}
	}
	return best
}
