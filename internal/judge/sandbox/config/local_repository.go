package config

import (
	"context"
	"fmt"

	"classjudge/internal/judge/sandbox/profile"
	"classjudge/internal/judge/sandbox/security"
	"classjudge/internal/judge/sandbox/spec"
	appErr "classjudge/pkg/errors"
)

// LocalRepository loads language specs and task profiles from memory.
type LocalRepository struct {
	languages map[string]profile.LanguageSpec
	profiles  map[string]profile.TaskProfile
}

// NewLocalRepository creates a repository from config lists.
// Empty lists fall back to the built-in C toolchain.
func NewLocalRepository(languages []profile.LanguageSpec, profiles []profile.TaskProfile) *LocalRepository {
	if len(languages) == 0 {
		languages = DefaultLanguages()
	}
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	langMap := make(map[string]profile.LanguageSpec)
	for _, lang := range languages {
		if lang.ID == "" {
			continue
		}
		langMap[lang.ID] = lang
	}
	profileMap := make(map[string]profile.TaskProfile)
	for _, prof := range profiles {
		if prof.TaskType == "" || prof.LanguageID == "" {
			continue
		}
		key := profileName(prof.LanguageID, prof.TaskType)
		profileMap[key] = prof
	}
	return &LocalRepository{languages: langMap, profiles: profileMap}
}

// GetLanguageSpec returns a language spec.
func (r *LocalRepository) GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error) {
	if id == "" {
		return profile.LanguageSpec{}, appErr.ValidationError("language_id", "required")
	}
	lang, ok := r.languages[id]
	if !ok {
		return profile.LanguageSpec{}, appErr.New(appErr.LanguageNotSupported).WithMessage("language not supported")
	}
	return lang, nil
}

// GetTaskProfile returns a task profile by type and language.
func (r *LocalRepository) GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID string) (profile.TaskProfile, error) {
	if taskType == "" || languageID == "" {
		return profile.TaskProfile{}, appErr.ValidationError("task_profile", "required")
	}
	key := profileName(languageID, taskType)
	prof, ok := r.profiles[key]
	if !ok {
		return profile.TaskProfile{}, appErr.New(appErr.NotFound).WithMessage("task profile not found")
	}
	return prof, nil
}

// Resolve maps a profile name to isolation settings.
func (r *LocalRepository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[profileName]
	if !ok {
		return security.IsolationProfile{}, appErr.New(appErr.NotFound).WithMessage("profile not found")
	}
	return security.IsolationProfile{
		RootFS:         prof.RootFS,
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: true,
	}, nil
}

// DefaultLanguages returns the built-in language registry.
// The shipped default supports C via gcc; further entries come from config.
func DefaultLanguages() []profile.LanguageSpec {
	return []profile.LanguageSpec{{
		ID:             "c",
		Name:           "C",
		Version:        "c11",
		SourceFile:     "main.c",
		BinaryFile:     "main",
		CompileEnabled: true,
		CompileCmdTpl:  "gcc -std=c11 -O2 -pipe -static -o {bin} {src} -lm",
		RunCmdTpl:      "{bin}",
	}}
}

// DefaultProfiles returns the built-in task profiles matching DefaultLanguages.
func DefaultProfiles() []profile.TaskProfile {
	return []profile.TaskProfile{
		{
			LanguageID: "c",
			TaskType:   profile.TaskTypeCompile,
			DefaultLimits: spec.ResourceLimit{
				CPUTimeMs:  10000,
				WallTimeMs: 20000,
				MemoryMB:   512,
				OutputMB:   64,
				PIDs:       64,
			},
		},
		{
			LanguageID: "c",
			TaskType:   profile.TaskTypeRun,
			DefaultLimits: spec.ResourceLimit{
				CPUTimeMs:  1000,
				WallTimeMs: 2000,
				MemoryMB:   256,
				StackMB:    64,
				OutputMB:   16,
				PIDs:       16,
			},
		},
	}
}

func profileName(languageID string, taskType profile.TaskType) string {
	return fmt.Sprintf("%s-%s", languageID, taskType)
}
