package util

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

const backupTimeFormat = "20060102T150405Z"

func ReadFileYAML(path string, target interface{}) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.Errorf("file %s does not exist", path)
	}

	yamlData, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "invalid file: %s", path)
	}

	if err := yaml.Unmarshal(yamlData, target); err != nil {
		return errors.Wrapf(err, "problem parsing yaml/json from file %s", path)
	}

	return nil
}

func FileExists(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return !os.IsNotExist(err)
}

// WriteFileAtomic writes data to a temporary file in the target's directory
// and renames it into place, so an interrupted write never leaves a
// partially written file at path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return errors.Wrapf(err, "problem creating temporary file for %s", path)
	}
	tmpName := f.Name()
	defer func() {
		// no-op unless the rename never happened
		_ = os.Remove(tmpName)
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "problem writing temporary file for %s", path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "problem syncing temporary file for %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "problem closing temporary file for %s", path)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.Wrapf(err, "problem setting permissions on temporary file for %s", path)
	}

	return errors.Wrapf(os.Rename(tmpName, path), "problem renaming temporary file to %s", path)
}

// BackupFile copies path to a sibling file suffixed with a UTC timestamp and
// returns the backup's path.
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "problem reading %s for backup", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "problem inspecting %s for backup", path)
	}

	backupPath := path + ".bak." + time.Now().UTC().Format(backupTimeFormat)
	if err := os.WriteFile(backupPath, data, info.Mode().Perm()); err != nil {
		return "", errors.Wrapf(err, "problem writing backup of %s", path)
	}

	return backupPath, nil
}
