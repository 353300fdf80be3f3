package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"pxtorem/config"
	"pxtorem/state"
)

// buildOutputPath returns where converted copy of src goes. The src is the
// path relative to the source root (just base name for single files), dst is
// the destination directory.
func buildOutputPath(src, dst string, env *state.LocalEnv) string {
	return filepath.Join(determineOutputDir(src, dst, env), filepath.Base(src))
}

func determineOutputDir(src, dst string, env *state.LocalEnv) string {
	if env.NoDirs {
		return dst
	}
	return filepath.Join(dst, filepath.Dir(src))
}

// buildArchiveOutputPath returns name of the converted archive copy.
func buildArchiveOutputPath(archive, dst string) string {
	return filepath.Join(dst, config.CleanFileName(filepath.Base(archive)))
}

// prepareOutput makes sure file could be written to name: existing file is
// an error unless overwriting is allowed, missing directories are created.
func prepareOutput(name string, env *state.LocalEnv, log *zap.Logger) error {
	if _, err := os.Stat(name); err == nil {
		if !env.Overwrite && !env.InPlace {
			return fmt.Errorf("output file already exists: %s", name)
		}
		if !env.InPlace {
			log.Debug("Overwriting existing file", zap.String("file", name))
		}
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	return nil
}

// writeOutput replaces name with data going through temporary file in the
// same directory so readers never see partial content.
func writeOutput(name string, data []byte, mode os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
