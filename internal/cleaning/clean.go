// Package cleaning prepares the raw camp survey workbooks for reshaping:
// column selection and renaming, client ids, race/ethnicity grouping,
// agreement-scale recoding and missing-answer imputation.
package cleaning

import (
	"strconv"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/errors"
)

// Raw column names as exported from the survey workbooks
const (
	RawClientID    = "Client ID"
	RawAge         = "Age"
	RawYearsAtCamp = "Years at Camp"
	RawRace        = "Race/Ethnicity"
	RawZipCode     = "Zip Code"
)

// DefaultRenames maps raw headers to the tidy column names
func DefaultRenames() map[string]string {
	return map[string]string{
		RawClientID:    survey.ColumnClient,
		RawAge:         survey.ColumnAge,
		RawYearsAtCamp: survey.ColumnYearsAtCamp,
		RawRace:        survey.ColumnRace,
		RawZipCode:     survey.ColumnZipCode,
	}
}

// Options names every column the cleaning step touches. Column lists refer to
// raw headers for Drop and to question headers for LikertColumns and
// FillColumns, which are not renamed.
type Options struct {
	Drop          []string
	Renames       map[string]string
	LikertColumns []string
	FillColumns   []string
	// Leading columns are moved to the front in this order
	Leading []string

	// RenumberYears lists cohorts whose raw client ids are replaced by
	// 1..n in order of first appearance before the study id is built
	RenumberYears []string

	Race   *RaceMapper
	Likert map[string]float64
}

// DefaultOptions cleans without dropping or recoding any question column
func DefaultOptions() Options {
	return Options{
		Renames:       DefaultRenames(),
		Leading:       []string{survey.ColumnClient, survey.ColumnAgeGroup, survey.ColumnYear, survey.ColumnTestType},
		RenumberYears: []string{"2018"},
		Race:          DefaultRaceMapper(),
		Likert:        DefaultLikertScale(),
	}
}

// Clean runs the full cleaning step over the concatenated raw sheets
func Clean(raw *frame.Frame, opts Options) (*frame.Frame, error) {
	if raw == nil {
		return nil, errors.InvalidInput("cleaning: input table is nil")
	}
	if opts.Race == nil {
		opts.Race = DefaultRaceMapper()
	}
	if opts.Likert == nil {
		opts.Likert = DefaultLikertScale()
	}

	f := raw.Clone()
	if err := AssignClientIDs(f, opts.RenumberYears); err != nil {
		return nil, err
	}

	f = f.Drop(opts.Drop...)
	f, err := f.Rename(opts.Renames)
	if err != nil {
		return nil, errors.Wrap(err, "cleaning: rename columns")
	}
	if err := f.Require(survey.ColumnZipCode, survey.ColumnYearsAtCamp, survey.ColumnRace); err != nil {
		return nil, errors.Wrap(err, "cleaning: renamed table")
	}

	if err := f.Map(survey.ColumnZipCode, NormalizeZip); err != nil {
		return nil, err
	}

	var parseErr error
	if err := f.Map(survey.ColumnYearsAtCamp, func(c frame.Cell) frame.Cell {
		out, err := ParseYearsAtCamp(c)
		if err != nil && parseErr == nil {
			parseErr = err
		}
		return out
	}); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}

	if err := f.Map(survey.ColumnRace, func(c frame.Cell) frame.Cell {
		return frame.Str(opts.Race.Group(c.String()))
	}); err != nil {
		return nil, err
	}

	for _, col := range opts.LikertColumns {
		if err := f.Map(col, func(c frame.Cell) frame.Cell { return LikertScore(opts.Likert, c) }); err != nil {
			return nil, errors.Wrap(err, "cleaning: recode agreement scale")
		}
	}

	if err := FillMode(f, opts.FillColumns...); err != nil {
		return nil, errors.Wrap(err, "cleaning: fill missing answers")
	}

	for pos, col := range opts.Leading {
		if err := f.Move(col, pos); err != nil {
			return nil, errors.Wrap(err, "cleaning: reorder columns")
		}
	}
	return f, nil
}

// AssignClientIDs rewrites the raw client id column into the study id
// (id + zip + year). Cohorts listed in renumber get sequential ids first
// because their raw ids were not comparable across sheets.
func AssignClientIDs(f *frame.Frame, renumber []string) error {
	if err := f.Require(RawClientID, RawZipCode, survey.ColumnYear); err != nil {
		return errors.Wrap(err, "cleaning: build client ids")
	}
	ids, _ := f.Column(RawClientID)
	zips, _ := f.Column(RawZipCode)
	years, _ := f.Column(survey.ColumnYear)

	renumbered := make(map[string]bool, len(renumber))
	for _, y := range renumber {
		renumbered[y] = true
	}
	sequence := make(map[string]map[string]int)

	out := make([]frame.Cell, len(ids))
	for i := range ids {
		id := ids[i]
		year := years[i].String()
		if renumbered[year] {
			seen := sequence[year]
			if seen == nil {
				seen = make(map[string]int)
				sequence[year] = seen
			}
			n, ok := seen[id.String()]
			if !ok {
				n = len(seen) + 1
				seen[id.String()] = n
			}
			id = frame.Str(strconv.Itoa(n))
		}
		out[i] = frame.Str(ClientID(id, zips[i], years[i]))
	}
	return f.Set(RawClientID, out)
}
