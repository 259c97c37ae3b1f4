package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// shapefileExts are the archive members that make up a shapefile.
var shapefileExts = map[string]bool{
	".shp": true,
	".shx": true,
	".dbf": true,
	".prj": true,
	".cpg": true,
}

// ExtractShapefile unpacks the shapefile members of a zip archive into
// destDir, keeping their folder layout, and returns the path of the first
// .shp member in lexical order. Other members and macOS resource forks are
// skipped.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	var shps []string
	skipped := 0
	for _, f := range r.File {
		ext := strings.ToLower(path.Ext(f.Name))
		if f.FileInfo().IsDir() || isResourceFork(f.Name) || !shapefileExts[ext] {
			skipped++
			continue
		}

		dest, err := memberPath(destDir, f.Name)
		if err != nil {
			return "", err
		}
		if err := unpack(f, dest); err != nil {
			return "", err
		}
		if ext == ".shp" {
			shps = append(shps, dest)
		}
	}

	if len(shps) == 0 {
		return "", eris.Errorf("zip: no .shp file in %s", filepath.Base(zipPath))
	}
	sort.Strings(shps)

	zap.L().Debug("zip: extracted shapefile",
		zap.String("archive", filepath.Base(zipPath)),
		zap.String("shp", shps[0]),
		zap.Int("skipped", skipped),
	)
	return shps[0], nil
}

// isResourceFork matches the __MACOSX/ and ._name entries Finder adds.
func isResourceFork(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._")
}

// memberPath maps an archive member name below destDir, refusing names that
// would land outside it.
func memberPath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: member %q escapes the extraction directory", name)
	}
	return dest, nil
}

func unpack(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "zip: create directory for %s", f.Name)
	}

	src, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer src.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dest)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	return eris.Wrapf(out.Close(), "zip: close %s", dest)
}
