package storage

import (
	"fmt"
	"regexp"
)

const (
	ArtifactPrefix      = "results_"
	ArtifactContentType = "text/csv"
)

var artifactNamePattern = regexp.MustCompile(`^results_[0-9]{1,20}(_[0-9]{1,6})?\.csv$`)

// ValidateArtifactName accepts only names the exporter generates, which keeps
// download requests from reaching arbitrary files.
func ValidateArtifactName(name string) error {
	if !artifactNamePattern.MatchString(name) {
		return fmt.Errorf("invalid artifact name: %q", name)
	}
	return nil
}

func IsArtifactName(name string) bool {
	return artifactNamePattern.MatchString(name)
}
