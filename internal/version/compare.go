package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// CheckConfigCompatibility checks that a config file written for configVersion can be read
// by a tool at toolVersion. Returns nil if compatible, error with details if not.
//
// configVersion is either a plain version or a semver constraint:
//   - An empty configVersion, or "main" on either side (development build), skips the check
//   - A constraint such as ">= 1.2, < 2" must be satisfied by the tool version
//   - A plain version must match the tool's major and minor versions; patch versions can differ
//
// Examples:
//   - Tool 1.2.0, config 1.2.0 -> OK (exact match)
//   - Tool 1.2.1, config 1.2.0 -> OK (patch differs)
//   - Tool 1.3.0, config 1.2.0 -> ERROR (minor differs)
//   - Tool 2.0.0, config ^1.2 -> ERROR (constraint not met)
//   - Tool main, config 1.2.0 -> OK (dev build, skip check)
func CheckConfigCompatibility(toolVersion, configVersion string) error {
	toolVersion = strings.TrimPrefix(strings.TrimSpace(toolVersion), "v")
	configVersion = strings.TrimSpace(configVersion)

	if configVersion == "" || toolVersion == "main" || configVersion == "main" {
		return nil
	}

	toolSemver, err := semver.NewVersion(toolVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid tool version '%s'", toolVersion)
	}

	if isConstraint(configVersion) {
		constraint, err := semver.NewConstraint(configVersion)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version constraint '%s'", configVersion)
		}

		if !constraint.Check(toolSemver) {
			return errors.Newf(errors.ErrCodeInvalidVersion, "tool version %s does not satisfy config constraint '%s'",
				toolSemver, configVersion)
		}

		return nil
	}

	configSemver, err := semver.NewVersion(strings.TrimPrefix(configVersion, "v"))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version '%s'", configVersion)
	}

	if toolSemver.Major() != configSemver.Major() {
		return errors.Newf(errors.ErrCodeInvalidVersion, "major version mismatch: tool is %d.x.x but config requires %d.x.x",
			toolSemver.Major(), configSemver.Major())
	}

	if toolSemver.Minor() != configSemver.Minor() {
		return errors.Newf(errors.ErrCodeInvalidVersion, "minor version mismatch: tool is %d.%d.x but config requires %d.%d.x",
			toolSemver.Major(), toolSemver.Minor(),
			configSemver.Major(), configSemver.Minor())
	}

	return nil
}

func isConstraint(value string) bool {
	return strings.ContainsAny(value, "<>=~^*, |")
}
