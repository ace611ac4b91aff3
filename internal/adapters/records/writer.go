package records

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/okian/teamelo/internal/domain/types"
)

// Standings encodings.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// standing is the exported shape of one row, with the rating rounded.
type standing struct {
	Rank     int    `json:"rank" yaml:"rank"`
	PlayerID string `json:"player_id" yaml:"player_id"`
	Rating   int64  `json:"rating" yaml:"rating"`
}

// WriteStandings encodes entries as rank,id,rating rows in the given format.
func WriteStandings(w io.Writer, entries []types.Entry, format string) error {
	switch format {
	case FormatCSV, "":
		return writeCSV(w, entries)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows(entries))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows(entries)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeCSV(w io.Writer, entries []types.Entry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		rec := []string{strconv.Itoa(e.Rank), e.PlayerID, strconv.FormatInt(e.Rounded(), 10)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func rows(entries []types.Entry) []standing {
	out := make([]standing, len(entries))
	for i, e := range entries {
		out[i] = standing{Rank: e.Rank, PlayerID: e.PlayerID, Rating: e.Rounded()}
	}
	return out
}

// SaveStandings writes entries to path, replacing any existing file.
func SaveStandings(path string, entries []types.Entry, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if err := WriteStandings(bw, entries, format); err != nil {
		return err
	}
	return bw.Flush()
}
