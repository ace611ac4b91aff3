// Package records reads rating, score, team and roster files and writes
// standings.
//
// All inputs are comma separated. Blank lines and lines starting with '#'
// are skipped, and fields are trimmed.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/teamelo/internal/domain/model"
)

// Score is one row of the scores file.
type Score struct {
	GameID  int64
	Outcome model.Outcome
}

// Assignment is one row of the games file: a player on a team in a game.
type Assignment struct {
	GameID   int64
	Team     int // 1 or 2
	PlayerID string
}

// each calls fn for every record of r with its 1-based line number.
func each(r io.Reader, file string, minFields int, fn func(line int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return &ParseError{File: file, Line: pe.Line, Err: pe.Err}
			}
			return fmt.Errorf("read %s: %w", file, err)
		}
		line, _ := cr.FieldPos(0)
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if len(rec) < minFields {
			return malformed(file, line, "want %d fields, got %d", minFields, len(rec))
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

// ReadInitial parses id,rating rows. A repeated id keeps its last rating.
func ReadInitial(r io.Reader, file string) (map[string]float64, error) {
	ratings := make(map[string]float64)
	err := each(r, file, 2, func(line int, rec []string) error {
		if rec[0] == "" {
			return malformed(file, line, "empty player id")
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return malformed(file, line, "rating %q: %w", rec[1], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return malformed(file, line, "rating %q is not finite", rec[1])
		}
		ratings[rec[0]] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

// ReadScores parses game_id,outcome rows.
func ReadScores(r io.Reader, file string) ([]Score, error) {
	var scores []Score
	err := each(r, file, 2, func(line int, rec []string) error {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return malformed(file, line, "game id %q: %w", rec[0], err)
		}
		o, err := model.ParseOutcome(rec[1])
		if err != nil {
			return malformed(file, line, "%w", err)
		}
		scores = append(scores, Score{GameID: id, Outcome: o})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// ReadAssignments parses game_id,team,player rows.
func ReadAssignments(r io.Reader, file string) ([]Assignment, error) {
	var rows []Assignment
	err := each(r, file, 3, func(line int, rec []string) error {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return malformed(file, line, "game id %q: %w", rec[0], err)
		}
		team, err := strconv.Atoi(rec[1])
		if err != nil || (team != 1 && team != 2) {
			return malformed(file, line, "team %q: want 1 or 2", rec[1])
		}
		if rec[2] == "" {
			return malformed(file, line, "empty player id")
		}
		rows = append(rows, Assignment{GameID: id, Team: team, PlayerID: rec[2]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadRoster returns the first field of every row in file order.
func ReadRoster(r io.Reader, file string) ([]string, error) {
	var roster []string
	err := each(r, file, 1, func(line int, rec []string) error {
		if rec[0] == "" {
			return malformed(file, line, "empty player id")
		}
		roster = append(roster, rec[0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roster, nil
}

// Assemble joins scores with team assignments into games sorted by id.
// A repeated score row for the same id keeps the last outcome. Every scored
// game needs players on both teams, and every assigned game needs a score.
func Assemble(scores []Score, assignments []Assignment) ([]model.Game, error) {
	outcomes := make(map[int64]model.Outcome, len(scores))
	for _, s := range scores {
		outcomes[s.GameID] = s.Outcome
	}
	teams := make(map[int64]*[2]model.Team)
	for _, a := range assignments {
		t, ok := teams[a.GameID]
		if !ok {
			t = &[2]model.Team{}
			teams[a.GameID] = t
		}
		t[a.Team-1] = append(t[a.Team-1], a.PlayerID)
	}

	for id := range teams {
		if _, ok := outcomes[id]; !ok {
			return nil, fmt.Errorf("%w: game %d has players but no score", ErrUnmatchedGame, id)
		}
	}

	ids := make([]int64, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	games := make([]model.Game, 0, len(ids))
	for _, id := range ids {
		t, ok := teams[id]
		if !ok {
			return nil, fmt.Errorf("%w: game %d has a score but no players", ErrUnmatchedGame, id)
		}
		g, err := model.NewGame(id, t[0], t[1], outcomes[id])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnmatchedGame, err)
		}
		games = append(games, g)
	}
	return games, nil
}

// LoadInitial reads an initial ratings file.
func LoadInitial(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadInitial(f, path)
}

// LoadGames reads a scores file and a games file and assembles them.
func LoadGames(scoresPath, gamesPath string) ([]model.Game, error) {
	sf, err := os.Open(scoresPath)
	if err != nil {
		return nil, err
	}
	defer sf.Close()
	scores, err := ReadScores(sf, scoresPath)
	if err != nil {
		return nil, err
	}

	gf, err := os.Open(gamesPath)
	if err != nil {
		return nil, err
	}
	defer gf.Close()
	assignments, err := ReadAssignments(gf, gamesPath)
	if err != nil {
		return nil, err
	}
	return Assemble(scores, assignments)
}

// LoadRoster reads a roster file.
func LoadRoster(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRoster(f, path)
}
