// Package tracker defines Trackers, which record data generated while
// training and save it when the run is over
package tracker

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
)

// Tracker keeps track of experiment data and saves the data after the
// experiment has finished. Track receives the results of one step of
// every environment of a vecenv.Manager.
type Tracker interface {
	Track(results []vecenv.Result)
	Save() error
}

// SaveData gob-encodes data into filename, creating parent directories
// as needed
func SaveData(filename string, data interface{}) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "saveData")
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "saveData: could not open save file")
	}
	if err := gob.NewEncoder(file).Encode(data); err != nil {
		file.Close()
		return errors.Wrap(err, "saveData: could not encode data")
	}
	return errors.Wrap(file.Close(), "saveData")
}

// LoadData loads and returns the data saved by a Tracker
func LoadData[T any](filename string) ([]T, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadData: could not open data file")
	}
	defer file.Close()

	var data []T
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "loadData: could not decode data")
	}
	return data, nil
}
