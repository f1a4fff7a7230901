package edgedecode

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadLabels reads the class names a Model was trained with from the given
// text file, one label per line.  Blank lines are kept so that line numbers
// stay aligned with class ids.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, errors.Wrap(err, "error opening labels file")
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading labels file")
	}

	return labels, nil
}

// Label returns the name of class id target, or a numeric placeholder when
// the labels do not cover it
func Label(labels []string, target int) string {

	if target >= 0 && target < len(labels) && labels[target] != "" {
		return labels[target]
	}

	return fmt.Sprintf("class %d", target)
}
