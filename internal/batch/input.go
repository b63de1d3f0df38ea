package batch

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"ytbatch/internal/model"
)

const commentPrefix = "#"

// ParseLines builds one Record per non-blank, non-comment line. The URL is
// the last whitespace-separated field; anything before it is per-URL args.
func ParseLines(lines []string, source model.Source) []*model.Record {
	records := make([]*model.Record, 0, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		fields := strings.Fields(line)
		url := fields[len(fields)-1]
		records = append(records, model.NewRecord(url, source, i+1, fields[:len(fields)-1]))
	}
	return records
}

// ReadFile returns the lines of a batch input file.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input %s", path)
	}
	defer f.Close()

	lines := make([]string, 0, 64)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read input %s", path)
	}
	return lines, nil
}
