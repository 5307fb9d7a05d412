package simbridge_harness

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

var errNoSuiteType = errors.New("cannot derive a filename: suite has no named type")

// fqtnReplacer flattens the characters Go type paths are built from so
// every suite maps to a single reproducible file name.
var fqtnReplacer = strings.NewReplacer(".", "_", "/", "_", "-", "_", "$", "_")

// defaultFilename derives a simulation file name from the suite's
// fully qualified type name, e.g. a suite UserSuite in package
// github.com/acme/api/tests becomes
// "github_com_acme_api_tests_UserSuite.json".
func defaultFilename(suiteValue any) (string, error) {
	t := reflect.TypeOf(suiteValue)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "", errNoSuiteType
	}
	full := t.Name()
	if t.PkgPath() != "" {
		full = t.PkgPath() + "." + t.Name()
	}
	return fqtnReplacer.Replace(full) + ".json", nil
}

// resolveSource turns a declared source spec into a loadable
// simulation source. For the default-path type an empty value falls
// back to the filename derived from the suite type.
func resolveSource(spec Source, suiteValue any, dir string) (simulation.Source, error) {
	switch spec.Type {
	case SourceEmpty:
		return simulation.Empty(), nil
	case SourceFile:
		return simulation.File(spec.Value), nil
	case SourceURL:
		return simulation.URL(spec.Value), nil
	case SourceDefaultPath:
		name := spec.Value
		if name == "" {
			derived, err := defaultFilename(suiteValue)
			if err != nil {
				return simulation.Source{}, err
			}
			name = derived
		}
		return simulation.DefaultPath(dir, name), nil
	default:
		return simulation.Source{}, errors.New("unknown source type")
	}
}

// resolveCapturePath builds the file captures are exported to.
func resolveCapturePath(spec Capture, suiteValue any, defaultDir string) (string, error) {
	dir := spec.Path
	if dir == "" {
		dir = defaultDir
	}
	name := spec.Filename
	if name == "" {
		derived, err := defaultFilename(suiteValue)
		if err != nil {
			return "", err
		}
		name = derived
	}
	return filepath.Join(dir, name), nil
}
