package synth

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/okian/teamelo/internal/domain/model"
)

// File names written by WriteDataset. They match the defaults read by teamelo.
const (
	ScoresFile = "scores.csv"
	GamesFile  = "games.csv"
	RosterFile = "roster.csv"
	SkillsFile = "skills.csv"
)

const directoryPermission = 0o750

// WriteScores writes one game_id,outcome row per game.
func WriteScores(w io.Writer, games []model.Game) error {
	cw := csv.NewWriter(w)
	for _, g := range games {
		if err := cw.Write([]string{strconv.FormatInt(g.ID(), 10), g.Outcome().Code()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAssignments writes one game_id,team,player row per participant.
func WriteAssignments(w io.Writer, games []model.Game) error {
	cw := csv.NewWriter(w)
	for _, g := range games {
		id := strconv.FormatInt(g.ID(), 10)
		var err error
		g.EachPlayer(func(team int, player string) {
			if err == nil {
				err = cw.Write([]string{id, strconv.Itoa(team), player})
			}
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRoster writes one player id per line.
func WriteRoster(w io.Writer, roster []string) error {
	cw := csv.NewWriter(w)
	for _, id := range roster {
		if err := cw.Write([]string{id}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSkills writes the hidden skills as id,skill rows. The file has the
// initial ratings layout, so it can seed a replay with the true values.
func WriteSkills(w io.Writer, players []Player) error {
	cw := csv.NewWriter(w)
	for _, p := range players {
		if err := cw.Write([]string{p.ID, strconv.FormatFloat(p.Skill, 'f', 2, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDataset writes the scores, games, roster and skills files into dir and
// returns their paths.
func WriteDataset(dir string, ds Dataset) ([]string, error) {
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ScoresFile, func(w io.Writer) error { return WriteScores(w, ds.Games) }},
		{GamesFile, func(w io.Writer) error { return WriteAssignments(w, ds.Games) }},
		{RosterFile, func(w io.Writer) error { return WriteRoster(w, ds.Roster) }},
		{SkillsFile, func(w io.Writer) error { return WriteSkills(w, ds.Players) }},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.write); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
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
	if err := write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
