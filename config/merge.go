package config

// mergeConfigs layers override on top of base. Scalar fields win when
// non-zero in the override; list fields replace wholesale (a project config
// that names venv_dirs owns that list); extension maps merge per key.
func mergeConfigs(base, override *Config) *Config {
	merged := *base

	if override.Version != "" {
		merged.Version = override.Version
	}

	merged.Settings = mergeSettings(base.Settings, override.Settings)

	if len(override.Extensions) > 0 {
		if merged.Extensions == nil {
			merged.Extensions = make(map[string]interface{}, len(override.Extensions))
		} else {
			copied := make(map[string]interface{}, len(merged.Extensions))
			for k, v := range merged.Extensions {
				copied[k] = v
			}
			merged.Extensions = copied
		}
		for k, v := range override.Extensions {
			merged.Extensions[k] = v
		}
	}

	if override.path != "" {
		merged.path = override.path
	}

	return &merged
}

func mergeSettings(base, override Settings) Settings {
	merged := base

	if override.WorkerPath != "" {
		merged.WorkerPath = override.WorkerPath
	}
	if override.CondaPath != "" {
		merged.CondaPath = override.CondaPath
	}
	if override.PoetryPath != "" {
		merged.PoetryPath = override.PoetryPath
	}
	if len(override.VenvDirs) > 0 {
		merged.VenvDirs = override.VenvDirs
	}
	if len(override.SearchPaths) > 0 {
		merged.SearchPaths = override.SearchPaths
	}
	if len(override.Workspaces) > 0 {
		merged.Workspaces = override.Workspaces
	}

	return merged
}
