package logaccess

import (
	"bufio"
	"os"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

const maxLinesPerResponse = 1000

// ReadResult is the content returned for a task/container log read, with
// the truncation flag spec.md §4.7 requires.
type ReadResult struct {
	Lines     []string
	Truncated bool
}

// Reader reads log files at the paths it is given (the paths recorded in
// the log index) and enforces the maximum-line cap per response. It does
// not confine reads to a fixed directory.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) Read(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ReadResult{}, gatewayerr.New(gatewayerr.NotFound, "log file not found")
		}
		return ReadResult{}, gatewayerr.New(gatewayerr.Internal, "log file unreadable")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		if len(lines) >= maxLinesPerResponse {
			return ReadResult{Lines: lines, Truncated: true}, nil
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ReadResult{}, gatewayerr.New(gatewayerr.Internal, "log file read error")
	}
	return ReadResult{Lines: lines, Truncated: false}, nil
}

// Match is one search hit.
type Match struct {
	Path string
	Line int
	Text string
}

// SearchContainer scans the log files belonging to containerID for the
// given (already-validated) pattern. Each file is read through Read, so
// only its first maxLinesPerResponse lines are searched.
func (r *Reader) SearchContainer(index *Index, containerID string, pattern *SafePattern) ([]Match, error) {
	var matches []Match
	for _, e := range index.EntriesForContainer(containerID) {
		res, err := r.Read(e.LogFile)
		if err != nil {
			continue
		}
		for lineNo, text := range res.Lines {
			if pattern.MatchString(text) {
				matches = append(matches, Match{Path: e.LogFile, Line: lineNo + 1, Text: text})
			}
		}
	}
	return matches, nil
}
