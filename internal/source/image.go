package source

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
)

var ErrNoImages = errors.New("no image files found")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

var firstNumber = regexp.MustCompile(`\d+`)

// ListImages returns the folder's images ordered by the first number in each name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !IsImage(entry.Name()) {
			continue
		}
		// Stat follows symlinks; dangling links and directories are skipped
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}

	SortByNumber(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// SortByNumber orders names by the value of their first digit run ("image 2" before
// "image 10"). Names without digits count as 0; ties keep their input order.
func SortByNumber(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return SortKey(names[i]) < SortKey(names[j])
	})
}

func SortKey(name string) uint64 {
	digits := firstNumber.FindString(filepath.Base(name))
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return math.MaxUint64
	}
	return n
}

// Dimensions reads only the image header.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("read header of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
