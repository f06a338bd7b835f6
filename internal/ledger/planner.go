package ledger

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Batch is one planned unit of transform work: up to maxPerBatch episodes of
// a single series inside a folder.
type Batch struct {
	// Name is "<folder>_<series>_partNNofMM", stable across runs for the
	// same catalog content.
	Name   string
	Folder string
	Series string
	Videos []string
	Index  int
	Total  int
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// DisplayTitle renders a series directory name for human-facing output.
func DisplayTitle(series string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(series, "_", " "))
	if cleaned == "" {
		return series
	}
	return titleCaser.String(cleaned)
}

// Plan splits a folder's videos into batches. Videos are grouped by series
// (the path segment below the folder, or the folder itself for flat
// layouts), ordered naturally within each series, and chunked to at most
// maxPerBatch episodes. Series are emitted in sorted order so plans are
// deterministic.
func Plan(folder string, videos []string, maxPerBatch int) []Batch {
	if len(videos) == 0 {
		return nil
	}
	if maxPerBatch < 1 {
		maxPerBatch = 1
	}

	bySeries := make(map[string][]string)
	for _, video := range videos {
		series := seriesOf(folder, video)
		bySeries[series] = append(bySeries[series], video)
	}
	seriesNames := make([]string, 0, len(bySeries))
	for series := range bySeries {
		seriesNames = append(seriesNames, series)
	}
	sort.Strings(seriesNames)

	var batches []Batch
	for _, series := range seriesNames {
		episodes := bySeries[series]
		sort.Slice(episodes, func(i, j int) bool { return naturalLess(episodes[i], episodes[j]) })

		total := (len(episodes) + maxPerBatch - 1) / maxPerBatch
		for index := 1; index <= total; index++ {
			start := (index - 1) * maxPerBatch
			end := start + maxPerBatch
			if end > len(episodes) {
				end = len(episodes)
			}
			batches = append(batches, Batch{
				Name:   BatchName(folder, series, index, total),
				Folder: folder,
				Series: series,
				Videos: episodes[start:end],
				Index:  index,
				Total:  total,
			})
		}
	}
	return batches
}

// BatchName builds the canonical batch identifier. The part index and total
// are both part of the key: re-planning after the folder grows yields new
// names instead of colliding with completed ones.
func BatchName(folder, series string, index, total int) string {
	return fmt.Sprintf("%s_%s_part%02dof%02d", sanitizeName(folder), sanitizeName(series), index, total)
}

// seriesOf extracts the series segment of a repo-relative video path. For
// "folder/series/ep.mp4" the series is the middle segment; flat
// "folder/ep.mp4" layouts use the folder itself.
func seriesOf(folder, video string) string {
	cleaned := strings.Trim(strings.ReplaceAll(video, "\\", "/"), "/")
	parts := strings.Split(cleaned, "/")
	if len(parts) >= 3 && parts[0] == folder {
		return parts[1]
	}
	return folder
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "",
		"\"", "", "<", "", ">", "", "|", "", " ", "_",
	)
	sanitized := strings.Trim(replacer.Replace(strings.TrimSpace(name)), "_")
	if sanitized == "" {
		return "unnamed"
	}
	return sanitized
}

// naturalLess compares strings with digit runs ordered numerically, so
// "ep2" sorts before "ep10".
func naturalLess(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		ca, cb := ar[i], br[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			ia, na := digitRun(ar, i)
			ib, nb := digitRun(br, j)
			if na != nb {
				return na < nb
			}
			i, j = ia, ib
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ar)-i < len(br)-j
}

// digitRun parses the numeric run starting at index i, returning the index
// after the run and its value.
func digitRun(runes []rune, i int) (int, int64) {
	var value int64
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		if value < 1<<50 {
			value = value*10 + int64(runes[i]-'0')
		}
		i++
	}
	return i, value
}
