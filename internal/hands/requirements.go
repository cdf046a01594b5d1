package hands

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// binaryExtensions lists the executable suffixes checked for a given
// platform when resolving a binary requirement against PATH.
func binaryExtensions() []string {
	if runtime.GOOS == "windows" {
		return []string{"", ".exe", ".cmd", ".bat"}
	}
	return []string{""}
}

// binaryOnPath reports whether a file named name (with a platform-
// appropriate extension) exists in any directory on PATH.
func binaryOnPath(name string) bool {
	pathEnv := os.Getenv("PATH")
	if pathEnv == "" {
		return false
	}

	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		for _, ext := range binaryExtensions() {
			candidate := filepath.Join(dir, name+ext)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return true
			}
		}
	}
	return false
}

// envSet reports whether name is set to a non-empty value, with the special
// case that a requirement on GEMINI_API_KEY is also satisfied by a non-empty
// GOOGLE_API_KEY.
func envSet(name string) bool {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return true
	}
	if name == "GEMINI_API_KEY" && strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")) != "" {
		return true
	}
	return false
}

// checkRequirement reports whether a single requirement is currently
// satisfied in the running environment.
func checkRequirement(req HandRequirement) bool {
	switch req.Kind {
	case RequirementBinary:
		return binaryOnPath(req.CheckValue)
	case RequirementEnvVar, RequirementAPIKey:
		return envSet(req.CheckValue)
	default:
		return false
	}
}

// CheckRequirements evaluates every requirement declared by a hand
// definition against the current environment.
func (r *Registry) CheckRequirements(id string) ([]RequirementCheck, error) {
	def, err := r.GetDefinition(id)
	if err != nil {
		return nil, err
	}

	checks := make([]RequirementCheck, 0, len(def.Requires))
	for _, req := range def.Requires {
		checks = append(checks, RequirementCheck{
			Requirement: req,
			Satisfied:   checkRequirement(req),
		})
	}
	return checks, nil
}

// RequirementsSatisfied reports whether every requirement for id currently
// passes.
func (r *Registry) RequirementsSatisfied(id string) (bool, error) {
	checks, err := r.CheckRequirements(id)
	if err != nil {
		return false, err
	}
	for _, c := range checks {
		if !c.Satisfied {
			return false, nil
		}
	}
	return true, nil
}

// CheckSettingsAvailability reports, for every option of every setting
// declared by a hand, whether it can currently be used: available iff its
// declared env var (if any) and binary (if any) both check out.
func (r *Registry) CheckSettingsAvailability(id string) ([]SettingAvailability, error) {
	def, err := r.GetDefinition(id)
	if err != nil {
		return nil, err
	}

	var out []SettingAvailability
	for _, setting := range def.Settings {
		for _, opt := range setting.Options {
			available := true
			if opt.ProviderEnv != "" {
				available = available && envSet(opt.ProviderEnv)
			}
			if opt.Binary != "" {
				available = available && binaryOnPath(opt.Binary)
			}
			out = append(out, SettingAvailability{
				SettingKey: setting.Key,
				Value:      opt.Value,
				Available:  available,
			})
		}
	}
	return out, nil
}
