package document

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gerrot/api/internal/model"
)

// markerPattern matches a time-range marker at the start of a line:
//
//	"[" INT "s" "-" INT "s" "]" ":"
//
// Leading indentation and blanks around the dash are tolerated. Anything
// after the colon stays part of the header line. Offsets are capped at nine
// digits so they always fit an int; longer ones leave the line as body text.
var markerPattern = regexp.MustCompile(`^[ \t]*\[(\d{1,9})s[ \t]*-[ \t]*(\d{1,9})s\]:`)

// Segment splits script content into blocks in order of appearance.
//
// A marker line opens a timed block whose header is the trimmed marker line.
// Following lines belong to it until the next marker or a blank line. Text
// outside any timed block is kept as unlabeled blocks so nothing is dropped.
// Content without markers yields exactly one unlabeled block holding the
// whole text.
func Segment(content string) []model.TimedBlock {
	lines := splitLines(content)

	var (
		blocks  []model.TimedBlock
		current *model.TimedBlock
		markers int
	)

	flush := func() {
		if current != nil {
			blocks = append(blocks, *current)
			current = nil
		}
	}

	for _, line := range lines {
		if start, end, ok := parseMarker(line); ok {
			flush()
			markers++
			current = &model.TimedBlock{
				Header:       strings.TrimSpace(line),
				Timed:        true,
				StartSeconds: start,
				EndSeconds:   end,
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if current == nil {
			current = &model.TimedBlock{}
		}
		current.BodyLines = append(current.BodyLines, line)
	}
	flush()

	if markers == 0 {
		return []model.TimedBlock{{BodyLines: trimBlankEdges(lines)}}
	}
	return blocks
}

func parseMarker(line string) (start, end int, ok bool) {
	m := markerPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	end, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}

func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	out := make([]string, end-start)
	copy(out, lines[start:end])
	return out
}
